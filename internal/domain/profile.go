package domain

// UsersCollection es la colección de documentos de perfil.
const UsersCollection = "users"

// Campos del documento de perfil.
const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldDOB       = "dob"
	FieldEmail     = "email"
)

// UserProfile es el registro plano de perfil, uno por usuario.
type UserProfile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Email     string `json:"email"`
}

// Fields devuelve el perfil como campos de documento.
func (p UserProfile) Fields() map[string]any {
	return map[string]any{
		FieldFirstName: p.FirstName,
		FieldLastName:  p.LastName,
		FieldDOB:       p.DOB,
		FieldEmail:     p.Email,
	}
}

// ProfileFromFields reconstruye un perfil desde un documento; los campos
// ausentes o de otro tipo quedan vacíos.
func ProfileFromFields(fields map[string]any) UserProfile {
	str := func(key string) string {
		if v, ok := fields[key].(string); ok {
			return v
		}
		return ""
	}
	return UserProfile{
		FirstName: str(FieldFirstName),
		LastName:  str(FieldLastName),
		DOB:       str(FieldDOB),
		Email:     str(FieldEmail),
	}
}

package domain

// Rutas de navegación entre vistas.
const (
	RouteLogin    = "/login"
	RouteRegister = "/register"
	RouteAccount  = "/account"
)

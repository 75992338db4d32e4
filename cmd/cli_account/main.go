package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"account-portal/internal/config"
	"account-portal/internal/db"
	"account-portal/internal/domain"
	"account-portal/internal/identity"
	"account-portal/internal/profile"
	"account-portal/internal/repository"
	"account-portal/internal/service"
	"account-portal/internal/session"
)

func main() {
	ephemeral := flag.Bool("ephemeral", false, "comptes et profils en mémoire (sans Postgres)")
	flag.Parse()

	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	logger := zap.NewExample()
	defer logger.Sync()

	var (
		accounts      repository.AccountRepository
		profiles      profile.Store
		tokens        *identity.TokenService
		providers     []identity.FederatedProvider
		lookupTimeout = 5 * time.Second
	)
	if *ephemeral {
		accounts = repository.NewMemoryAccountRepository()
		profiles = profile.NewMemoryStore()
		tokens = identity.NewTokenService(uuid.NewString(), 0, 0, nil)
		fmt.Println("Mode éphémère : les données sont perdues à la sortie.")
	} else {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatal(err)
		}
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		accounts = repository.NewPgAccountRepository(pool)
		profiles = profile.NewDocumentStore(logger, repository.NewPgDocumentRepository(pool))
		tokens = identity.NewTokenService(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL(), nil)
		lookupTimeout = cfg.ProfileLookupTimeout
		if cfg.GoogleEnabled() {
			providers = append(providers, identity.NewGoogleProvider(identity.GoogleConfig{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.GoogleRedirectURL,
			}))
		}
	}

	backend := identity.NewBackend(logger, accounts, tokens, providers...)
	client := identity.NewSessionClient(backend)
	svc := service.NewAccountService(logger, profiles, nil)
	nav := session.NavigatorFunc(func(route string) {
		fmt.Printf("-> %s\n", route)
	})
	opts := session.Options{Logger: logger, LookupTimeout: lookupTimeout}

	for {
		fmt.Println("\n===== Compte =====")
		if u := client.CurrentUser(); u != nil {
			fmt.Printf("Session : %s\n", u.Email)
		}
		fmt.Println("[1] Inscription")
		fmt.Println("[2] Connexion")
		fmt.Println("[3] Inscription avec Google")
		fmt.Println("[4] Connexion avec Google")
		fmt.Println("[5] Mon compte")
		fmt.Println("[6] Se déconnecter")
		fmt.Println("[7] Se déconnecter de tous les appareils")
		fmt.Println("[8] Quitter")
		fmt.Print("Choisissez une option : ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "1":
			input := service.RegisterInput{
				FirstName: prompt(reader, "Prénom"),
				LastName:  prompt(reader, "Nom"),
				DOB:       prompt(reader, "Date de naissance (AAAA-MM-JJ)"),
				Email:     prompt(reader, "Email"),
				Password:  prompt(reader, "Mot de passe"),
			}
			res, _ := svc.RegisterWithPassword(ctx, client, input)
			follow(ctx, res, client, profiles, nav, opts)
		case "2":
			email := prompt(reader, "Email")
			password := prompt(reader, "Mot de passe")
			res, _ := svc.LoginWithPassword(ctx, client, email, password)
			follow(ctx, res, client, profiles, nav, opts)
		case "3", "4":
			code, ok := federatedCode(reader, backend)
			if !ok {
				continue
			}
			var res service.Result
			if strings.TrimSpace(line) == "3" {
				res, _ = svc.RegisterWithFederated(ctx, client, domain.AuthProviderGoogle, code)
			} else {
				res, _ = svc.LoginWithFederated(ctx, client, domain.AuthProviderGoogle, code)
			}
			follow(ctx, res, client, profiles, nav, opts)
		case "5":
			showAccount(ctx, client, profiles, nav, opts)
		case "6":
			logout(ctx, client, profiles, nav, opts)
		case "7":
			if u := client.CurrentUser(); u != nil {
				if err := backend.EndAllSessions(u.ID); err != nil {
					fmt.Printf("Erreur : %s\n", service.Message(err))
				}
			}
			logout(ctx, client, profiles, nav, opts)
		case "8":
			return
		default:
			fmt.Println("Option invalide.")
		}
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	text, _ := reader.ReadString('\n')
	return strings.TrimSpace(text)
}

// federatedCode muestra la URL de consentimiento y lee el código pegado por el usuario.
func federatedCode(reader *bufio.Reader, backend *identity.Backend) (string, bool) {
	provider, err := backend.Provider(domain.AuthProviderGoogle)
	if err != nil {
		fmt.Println(service.Message(err))
		return "", false
	}
	fmt.Println("Ouvrez cette URL puis collez le paramètre code de la redirection :")
	fmt.Println(provider.AuthCodeURL(uuid.NewString()))
	return prompt(reader, "Code"), true
}

func follow(ctx context.Context, res service.Result, client identity.Client, profiles profile.Store, nav session.Navigator, opts session.Options) {
	if res.Message != "" {
		fmt.Printf("Erreur : %s\n", res.Message)
	}
	if res.Next == "" {
		return
	}
	nav.Navigate(res.Next)
	if res.Next == domain.RouteAccount {
		showAccount(ctx, client, profiles, nav, opts)
	}
}

func showAccount(ctx context.Context, client identity.Client, profiles profile.Store, nav session.Navigator, opts session.Options) {
	obs := session.NewObserver(client, profiles, nav, opts)
	obs.OnChange(func(s session.State) {
		if s.Phase == session.PhaseLoading {
			fmt.Println("Chargement...")
		}
	})
	if err := obs.Mount(ctx); err != nil {
		fmt.Printf("Erreur : %v\n", err)
		return
	}
	defer obs.Unmount()

	waitCtx, cancel := context.WithTimeout(ctx, opts.LookupTimeout+time.Second)
	defer cancel()
	state, err := obs.Wait(waitCtx)
	if err != nil {
		fmt.Println("Le profil met trop de temps à charger.")
		return
	}

	switch state.Phase {
	case session.PhaseReady:
		fmt.Println("--- Mon compte ---")
		fmt.Printf("Prénom : %s\n", state.Profile.FirstName)
		fmt.Printf("Nom : %s\n", state.Profile.LastName)
		fmt.Printf("Date de naissance : %s\n", state.Profile.DOB)
		fmt.Printf("Email : %s\n", state.Profile.Email)
	case session.PhaseNoProfile:
		fmt.Println("Aucune donnée de profil.")
		if state.Message != "" {
			fmt.Printf("Erreur : %s\n", state.Message)
		}
	}
}

func logout(ctx context.Context, client identity.Client, profiles profile.Store, nav session.Navigator, opts session.Options) {
	obs := session.NewObserver(client, profiles, nav, opts)
	if err := obs.Logout(ctx); err != nil {
		fmt.Printf("Erreur de déconnexion : %s\n", service.Message(err))
	}
}

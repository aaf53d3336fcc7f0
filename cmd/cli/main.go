package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wadjakorntonsri/ns-shortener/pkg/adapters/handler"
	"github.com/wadjakorntonsri/ns-shortener/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/ns-shortener/pkg/app"
	"github.com/wadjakorntonsri/ns-shortener/pkg/config"
	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
)

const usage = "expected 'export', 'import', 'token' or 'rename-namespace' subcommands"

// exportPage is how many URLs are read per query during export.
const exportPage = 500

// namespaceDump is one namespace and its URLs in the export format.
type namespaceDump struct {
	Namespace domain.Namespace  `json:"namespace"`
	URLs      []domain.ShortURL `json:"urls"`
}

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportOrg := exportCmd.String("org", "", "organization to export")

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "JSON file to import")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenUser := tokenCmd.String("user", "", "user id")
	tokenOrg := tokenCmd.String("org", "", "bind the token to one organization")
	tokenTTL := tokenCmd.Duration("ttl", 24*time.Hour, "token lifetime")

	renameCmd := flag.NewFlagSet("rename-namespace", flag.ExitOnError)
	renameOrg := renameCmd.String("org", "", "organization owning the namespace")
	renameFrom := renameCmd.String("from", "", "current namespace name")
	renameTo := renameCmd.String("to", "", "new namespace name")

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.Logging.Format = "console"
	app.InitLogging(cfg)
	ctx := context.Background()

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if *exportOrg == "" {
			exportCmd.PrintDefaults()
			os.Exit(1)
		}
		repo := openRepo(cfg)
		defer repo.Close()
		if err := doExport(ctx, repo, *exportOrg, os.Stdout); err != nil {
			logging.Fatal().Err(err).Msg("export failed")
		}
	case "import":
		importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		f, err := os.Open(*importFile)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open file")
		}
		defer f.Close()
		repo := openRepo(cfg)
		defer repo.Close()
		n, err := doImport(ctx, repo, f)
		if err != nil {
			logging.Fatal().Err(err).Msg("import failed")
		}
		logging.Info().Int("imported", n).Msg("import finished")
	case "token":
		tokenCmd.Parse(os.Args[2:])
		if *tokenUser == "" {
			tokenCmd.PrintDefaults()
			os.Exit(1)
		}
		tok, err := issueToken(cfg.Security.JWTSecret, *tokenUser, *tokenOrg, *tokenTTL, time.Now())
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to sign token")
		}
		fmt.Println(tok)
	case "rename-namespace":
		renameCmd.Parse(os.Args[2:])
		if *renameOrg == "" || *renameFrom == "" || *renameTo == "" {
			renameCmd.PrintDefaults()
			os.Exit(1)
		}
		a, err := app.New(ctx, cfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize application")
		}
		defer a.Close()
		ns, err := a.Namespaces.Rename(ctx, *renameOrg, *renameFrom, *renameTo)
		if err != nil {
			logging.Fatal().Err(err).Msg("rename failed")
		}
		logging.Info().Str("namespace_id", ns.ID).Str("name", ns.Name).Msg("namespace renamed")
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func openRepo(cfg *config.Config) *sqlite.SQLiteRepository {
	repo, err := sqlite.NewSQLiteRepository(cfg.Database.URL, sqlite.WithOpTimeout(cfg.Database.OpTimeout))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to db")
	}
	return repo
}

// doExport writes every namespace of org with all its URLs, inactive ones included.
func doExport(ctx context.Context, repo *sqlite.SQLiteRepository, org string, w io.Writer) error {
	namespaces, err := repo.ListNamespaces(ctx, org)
	if err != nil {
		return err
	}

	dump := make([]namespaceDump, 0, len(namespaces))
	for _, ns := range namespaces {
		entry := namespaceDump{Namespace: ns, URLs: []domain.ShortURL{}}
		for offset := 0; ; offset += exportPage {
			page, err := repo.ListByNamespace(ctx, ns.ID, exportPage, offset)
			if err != nil {
				return fmt.Errorf("list %s: %w", ns.Name, err)
			}
			entry.URLs = append(entry.URLs, page...)
			if len(page) < exportPage {
				break
			}
		}
		dump = append(dump, entry)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}

// doImport loads an export. Namespaces are matched by name and created when
// missing; URLs whose shortcode already exists are skipped.
func doImport(ctx context.Context, repo *sqlite.SQLiteRepository, r io.Reader) (int, error) {
	var dump []namespaceDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}

	count := 0
	for _, entry := range dump {
		ns, err := repo.GetNamespaceByName(ctx, entry.Namespace.Name)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			ns = &entry.Namespace
			if err := repo.CreateNamespace(ctx, ns); err != nil {
				return count, fmt.Errorf("create namespace %s: %w", ns.Name, err)
			}
		case err != nil:
			return count, err
		}

		for _, u := range entry.URLs {
			u.NamespaceID = ns.ID
			u.NamespaceName = ns.Name
			exists, err := repo.Exists(ctx, ns.ID, u.Shortcode)
			if err != nil {
				return count, err
			}
			if exists {
				logging.Info().Str("namespace", ns.Name).Str("shortcode", u.Shortcode).Msg("skipping existing shortcode")
				continue
			}
			if err := repo.Create(ctx, &u); err != nil {
				logging.Warn().Err(err).Str("namespace", ns.Name).Str("shortcode", u.Shortcode).Msg("failed to import url")
				continue
			}
			count++
		}
	}
	return count, nil
}

func issueToken(secret, userID, orgID string, ttl time.Duration, now time.Time) (string, error) {
	claims := &handler.Claims{
		UserID: userID,
		OrgID:  orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Command useradm is the administrative CLI for account management:
// creating accounts and flipping their activation/verification flags.
// Registration over HTTP leaves accounts unusable until an operator
// approves them here.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/notemist/notemist/internal/server/auth"
	"github.com/notemist/notemist/internal/server/models"
	"github.com/notemist/notemist/internal/server/repositories/repomanager"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func usage() {
	fmt.Fprintf(os.Stderr, `usage: useradm -d <dsn> <command> -u <username>

commands:
  create     create an account (prompts for a password)
  activate   mark the account activated
  verify     mark the account verified
  approve    activate and verify in one step
`)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("useradm", flag.ExitOnError)
	fs.Usage = usage

	dsn := fs.String("d", os.Getenv("DATABASE_DSN"), "database DSN")
	username := fs.String("u", "", "username")

	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}
	command := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	if *dsn == "" {
		return fmt.Errorf("database DSN is required (-d or DATABASE_DSN)")
	}
	if *username == "" {
		return fmt.Errorf("username is required (-u)")
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	switch command {
	case "create":
		return createUser(ctx, db, rm, *username)
	case "activate":
		return setFlags(ctx, db, *username, "is_activated")
	case "verify":
		return setFlags(ctx, db, *username, "is_verified")
	case "approve":
		return setFlags(ctx, db, *username, "is_activated", "is_verified")
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func createUser(ctx context.Context, db *sql.DB, rm repomanager.RepositoryManager, username string) error {
	fmt.Print("Password: ")
	password, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	if len(password) == 0 {
		return fmt.Errorf("empty password")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return err
	}

	user, err := rm.Users(db).Create(ctx, &models.User{
		UserName:     username,
		PasswordHash: hash,
	})
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}

	fmt.Printf("created %s (%s)\n", user.UserName, user.ID)
	return nil
}

// setFlags flips the named boolean columns on the account row. The column
// names come from the fixed command table above, never from user input.
func setFlags(ctx context.Context, db *sql.DB, username string, columns ...string) error {
	query := "UPDATE users SET "
	for i, col := range columns {
		if i > 0 {
			query += ", "
		}
		query += col + " = true"
	}
	query += " WHERE username = $1"

	res, err := db.ExecContext(ctx, query, username)
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("no such user %q", username)
	}

	fmt.Printf("updated %s\n", username)
	return nil
}

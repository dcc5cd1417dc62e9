package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
	emailsvc "github.com/aurraa/classroom/services/email"
	"github.com/aurraa/classroom/storage/database"
	inmemdb "github.com/aurraa/classroom/storage/database/inmem"
	testutil "github.com/aurraa/classroom/tests"
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	conf := &core.Config{SecretKey: "secret", PasswordResetTimeoutDelta: 72 * time.Hour}
	validate, translator := core.NewValidator()
	repo := inmemdb.NewAccountRepository(inmemdb.Open())

	// start CLI
	return &commandLine{
		accSvc: account.NewService(repo, emailsvc.NewConsoleServiceMock(conf, &testutil.Logger{}), conf, validate, translator),
		repo:   repo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotDir string
	database.GooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		gotDir = dir
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case err == nil:
				if tt.wantErr != nil || tt.wantErrStr != "" {
					t.Errorf("cli.run() no error, want %v%s", tt.wantErr, tt.wantErrStr)
				}
				if gotDir != database.MigrationsDir {
					t.Errorf("migrations dir = %q, want %q", gotDir, database.MigrationsDir)
				}
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if errors.Cause(err).Error() != tt.wantErrStr {
					t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", errors.Cause(err).Error(), tt.wantErrStr)
				}
			default:
				t.Errorf("cli.run() unexpected error = %v", err)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	acc, err := cli.accSvc.Create(ctx, account.NewAccount{Username: "awe", Email: "awe@test.cd", Password: "password1"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: account.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", "AWE"}, extra: extra{pwd: "password2"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", acc.Email}, extra: extra{pwd: "password3"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		pwd := ""
		if extra, ok := tt.extra.(extra); ok {
			pwd = extra.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			before, err := cli.repo.GetAccount(ctx, account.GetFilter{ID: acc.ID})
			if err != nil {
				t.Fatalf("GetAccount() failed, %v", err)
			}

			err = cli.run(args)
			if err == nil {
				refreshed, err := cli.repo.GetAccount(ctx, account.GetFilter{ID: acc.ID})
				if err != nil {
					t.Fatalf("GetAccount() failed, %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, before.PasswordHash) {
					t.Error("failed to update new password")
				}
				if refreshed.CheckPassword(pwd) != nil {
					t.Error("new password does not match")
				}
			} else if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		args    []string
		pwd     string
		wantErr error
	}{
		{name: "no email", args: []string{"adduser", "-username", "ada"}, pwd: "password1", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "ada@school.edu"}, wantErr: errHelp},
		{
			name: "create", pwd: "password1",
			args: []string{"adduser", "-email", "Ada@School.edu", "-username", "ada", "-name", "Ada", "-institution", "School"},
		},
		{name: "update password", args: []string{"adduser", "-email", "ada@school.edu"}, pwd: "password2"},
	}
	for _, tt := range tests {
		mockPassword(tt.pwd)
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Fatalf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	acc, err := cli.accSvc.Authenticate(ctx, "ada@school.edu", "password2")
	if err != nil {
		t.Fatalf("Authenticate() failed: %v", err)
	}
	if acc.Username != "ada" || acc.Role != "teacher" || acc.Institution != "School" || !acc.IsActive {
		t.Errorf("account = %+v", acc)
	}

	// invalid accounts are reported by the directory
	mockPassword("short")
	err = cli.run([]string{"admin", "adduser", "-email", "bob@school.edu"})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("cli.run() error = %v, want a validation error", err)
	}
}

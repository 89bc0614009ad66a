// Command sk is a CLI client for the scorekeeper HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
)

// ---- config store ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "scorekeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "scorekeeper")
}

func userIDPath() string { return filepath.Join(cfgDir(), "user_id") }

func saveUserID(uid string) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(userIDPath(), []byte(strings.TrimSpace(uid)), 0o600)
}

func loadUserID() (string, error) {
	b, err := os.ReadFile(userIDPath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// resolveID returns the explicit id or the remembered one.
func resolveID(flagID string) (string, error) {
	id := strings.TrimSpace(flagID)
	if id == "" {
		saved, err := loadUserID()
		if err != nil || saved == "" {
			return "", errors.New("need -id (no remembered user; run register first)")
		}
		id = saved
	}
	if _, err := u.FromString(id); err != nil {
		return "", fmt.Errorf("bad -id %q: %w", id, err)
	}
	return id, nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `sk CLI
Usage:
  sk [-addr URL] [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  register   -name <name>                           (remembers the user id)
  show       [-id <uuid>]
  history    [-id <uuid>] [-recent <n>]
  award      [-id <uuid>] -points <n> [-sales <n>]
  sale       [-id <uuid>] -count <n>
  badge      [-id <uuid>] -badge <name>
  complete   [-id <uuid>] [-challenge <id>] [-points <n>] [-badge <name>]
  ranking    [-limit <n>]
  challenges
`)
}

var errUsage = errors.New("usage")

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the configured server.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fail(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// global flags
	gfs := flag.NewFlagSet("sk", flag.ContinueOnError)
	gfs.SetOutput(stderr)
	addr := gfs.String("addr", envOr("SK_ADDR", "http://localhost:8080"), "server base URL")
	caPath := gfs.String("cacert", "", "CA cert (PEM)")
	insecure := gfs.Bool("insecure", false, "skip cert verify (dev)")
	gfs.Usage = func() { usage(stderr) }
	if err := gfs.Parse(args); err != nil {
		return errUsage
	}
	if gfs.NArg() < 1 {
		usage(stderr)
		return errUsage
	}
	cmd, rest := gfs.Arg(0), gfs.Args()[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "sk %s (%s)\n", version, buildDate)
		return nil
	}

	c, err := newClient(*addr, *caPath, *insecure)
	if err != nil {
		return err
	}

	var out json.RawMessage
	switch cmd {

	case "register":
		fs := flag.NewFlagSet("register", flag.ContinueOnError)
		fs.SetOutput(stderr)
		name := fs.String("name", "", "display name")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		if strings.TrimSpace(*name) == "" {
			return errors.New("need -name")
		}
		if err := c.do(ctx, http.MethodPost, "/users", map[string]string{"name": *name}, &out); err != nil {
			return err
		}
		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(out, &created); err == nil && created.ID != "" {
			if err := saveUserID(created.ID); err != nil {
				fmt.Fprintf(stderr, "warning: could not remember user id: %v\n", err)
			}
		}

	case "show":
		fs := flag.NewFlagSet("show", flag.ContinueOnError)
		fs.SetOutput(stderr)
		idFlag := fs.String("id", "", "user id (uuid)")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		id, err := resolveID(*idFlag)
		if err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodGet, "/users/"+id, nil, &out); err != nil {
			return err
		}

	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		fs.SetOutput(stderr)
		idFlag := fs.String("id", "", "user id (uuid)")
		recent := fs.Int("recent", 5, "number of recent entries")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		id, err := resolveID(*idFlag)
		if err != nil {
			return err
		}
		q := url.Values{"recent": {strconv.Itoa(*recent)}}
		if err := c.do(ctx, http.MethodGet, "/users/"+id+"/points?"+q.Encode(), nil, &out); err != nil {
			return err
		}

	case "award":
		fs := flag.NewFlagSet("award", flag.ContinueOnError)
		fs.SetOutput(stderr)
		idFlag := fs.String("id", "", "user id (uuid)")
		points := fs.Int64("points", 0, "points to add")
		sales := fs.Int64("sales", 0, "sales to add")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		id, err := resolveID(*idFlag)
		if err != nil {
			return err
		}
		if *points <= 0 && *sales <= 0 {
			return errors.New("need -points and/or -sales > 0")
		}
		body := map[string]int64{"points": *points, "sales": *sales}
		if err := c.do(ctx, http.MethodPost, "/users/"+id+"/points", body, &out); err != nil {
			return err
		}

	case "sale":
		fs := flag.NewFlagSet("sale", flag.ContinueOnError)
		fs.SetOutput(stderr)
		idFlag := fs.String("id", "", "user id (uuid)")
		count := fs.Int64("count", 1, "number of sales")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		id, err := resolveID(*idFlag)
		if err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodPost, "/users/"+id+"/sales", map[string]int64{"count": *count}, &out); err != nil {
			return err
		}

	case "badge":
		fs := flag.NewFlagSet("badge", flag.ContinueOnError)
		fs.SetOutput(stderr)
		idFlag := fs.String("id", "", "user id (uuid)")
		badge := fs.String("badge", "", "badge name")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		id, err := resolveID(*idFlag)
		if err != nil {
			return err
		}
		if strings.TrimSpace(*badge) == "" {
			return errors.New("need -badge")
		}
		if err := c.do(ctx, http.MethodPost, "/users/"+id+"/achievements", map[string]string{"badge": *badge}, &out); err != nil {
			return err
		}

	case "complete":
		fs := flag.NewFlagSet("complete", flag.ContinueOnError)
		fs.SetOutput(stderr)
		idFlag := fs.String("id", "", "user id (uuid)")
		challenge := fs.String("challenge", "", "challenge id (required in multi mode)")
		points := fs.Int64("points", 0, "bonus override")
		badge := fs.String("badge", "", "badge override")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		id, err := resolveID(*idFlag)
		if err != nil {
			return err
		}
		body := struct {
			Challenge string `json:"challenge,omitempty"`
			Points    int64  `json:"points,omitempty"`
			Badge     string `json:"badge,omitempty"`
		}{*challenge, *points, *badge}
		if err := c.do(ctx, http.MethodPost, "/users/"+id+"/complete-challenge", body, &out); err != nil {
			return err
		}

	case "ranking":
		fs := flag.NewFlagSet("ranking", flag.ContinueOnError)
		fs.SetOutput(stderr)
		limit := fs.Int("limit", 10, "number of entries")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		q := url.Values{"limit": {strconv.Itoa(*limit)}}
		if err := c.do(ctx, http.MethodGet, "/ranking?"+q.Encode(), nil, &out); err != nil {
			return err
		}

	case "challenges":
		if err := c.do(ctx, http.MethodGet, "/challenges", nil, &out); err != nil {
			return err
		}

	default:
		usage(stderr)
		return errUsage
	}

	printJSON(stdout, out)
	return nil
}

// ---- helpers ----

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fail(w io.Writer, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(w, "api error: status=%d msg=%s\n", ae.Status, ae.Message)
		return
	}
	fmt.Fprintln(w, err)
}

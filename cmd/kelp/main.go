// Command kelp is a CLI client for the transfer service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	api "github.com/kelpcommercial/kelp-transfers/internal/api/transferv1"
	grpcserver "github.com/kelpcommercial/kelp-transfers/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "kelp")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kelp")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp without verifying the signature; the server does that.
func tokenExpiry(tok string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// ---- grpc dial ----

type bearerCreds struct{ token string }

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return true }

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(ctx context.Context, addr, caPath string, insecure bool, bearer string) (*grpc.ClientConn, *api.Client, error) {
	creds, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, nil, err
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewClient(cc), nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

var sizeUnits = []struct {
	suffix string
	mult   uint64
}{
	{"GiB", 1 << 30}, {"MiB", 1 << 20}, {"KiB", 1 << 10}, {"B", 1},
}

// parseSize accepts plain bytes or a KiB/MiB/GiB suffix, e.g. "4GiB".
func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	for _, u := range sizeUnits {
		num, ok := strings.CutSuffix(s, u.suffix)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(num), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad size %q", s)
		}
		if n > ^uint64(0)/u.mult {
			return 0, fmt.Errorf("size %q overflows", s)
		}
		return n * u.mult, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad size %q", s)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usage() {
	fmt.Fprintf(os.Stderr, `kelp CLI
Usage:
  kelp -addr HOST:PORT [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  login      -token <jwt>                                  (saves token)
  dev-token  -key <secret> -sub <user id> [-ttl 1h]        (signs and saves a token; dev only)
  register   -email <addr> [-name <full name>] [-avatar <url>]
  usage
  create     -sender <addr> -to <a,b> -title <t> -size 4GiB [-expires 168h] [-id <uuid>]
  get        -id <uuid>
  upload-url -id <uuid> -file <file id> -chunk N -size <bytes>
  upload     -id <uuid> -path <local file> [-file <file id>] [-chunk-size 8MiB]
  progress   -id <uuid> -files N -bytes <bytes>
  complete   -id <uuid>
  reconcile  -id <uuid>
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// authed dials with the saved token.
	authed := func() (*grpc.ClientConn, *api.Client) {
		token, err := loadToken()
		if err != nil {
			fail(err)
		}
		cc, cli, err := dial(ctx, *addr, *caPath, *insecure, token)
		if err != nil {
			fail(err)
		}
		return cc, cli
	}

	switch cmd {

	case "version":
		fmt.Printf("kelp %s (%s)\n", version, buildDate)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		tok := fs.String("token", "", "bearer token from the identity provider")
		_ = fs.Parse(args)
		if *tok == "" {
			fmt.Fprintln(os.Stderr, "need -token")
			os.Exit(1)
		}
		exp, err := tokenExpiry(*tok)
		if err != nil {
			fail(err)
		}
		if err := saveToken(*tok, exp); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "dev-token":
		fs := flag.NewFlagSet("dev-token", flag.ExitOnError)
		key := fs.String("key", os.Getenv("JWT_SIGNING_KEY"), "HS256 signing key")
		sub := fs.String("sub", "", "caller id")
		ttl := fs.Duration("ttl", time.Hour, "token lifetime")
		_ = fs.Parse(args)
		if *key == "" || *sub == "" {
			fmt.Fprintln(os.Stderr, "need -key and -sub")
			os.Exit(1)
		}
		tok, exp, err := grpcserver.IssueToken([]byte(*key), *sub, *ttl)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tok, exp); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		email := fs.String("email", "", "email")
		name := fs.String("name", "", "full name")
		avatar := fs.String("avatar", "", "avatar url")
		_ = fs.Parse(args)
		if *email == "" {
			fmt.Fprintln(os.Stderr, "need -email")
			os.Exit(1)
		}
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.RegisterUser(ctx, &api.RegisterUserRequest{Email: *email, FullName: *name, AvatarURL: *avatar})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "usage":
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.GetUsage(ctx, &api.GetUsageRequest{})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		id := fs.String("id", "", "transfer id (uuid, optional)")
		sender := fs.String("sender", "", "sender email")
		to := fs.String("to", "", "comma-separated recipient emails")
		title := fs.String("title", "", "title")
		size := fs.String("size", "0", "declared total size")
		expires := fs.Duration("expires", 7*24*time.Hour, "lifetime")
		_ = fs.Parse(args)
		total, err := parseSize(*size)
		if err != nil {
			fail(err)
		}
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.CreateTransfer(ctx, &api.CreateTransferRequest{
			ID:              *id,
			SenderEmail:     *sender,
			RecipientEmails: splitList(*to),
			Title:           *title,
			TotalSize:       total,
			ExpiresAt:       time.Now().Add(*expires).UTC(),
		})
		if err != nil {
			fail(err)
		}
		fmt.Println(out.ID)

	case "get":
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		id := fs.String("id", "", "transfer id (uuid)")
		_ = fs.Parse(args)
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.GetTransfer(ctx, &api.GetTransferRequest{ID: *id})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "upload-url":
		fs := flag.NewFlagSet("upload-url", flag.ExitOnError)
		id := fs.String("id", "", "transfer id (uuid)")
		file := fs.String("file", "", "file id")
		chunk := fs.Uint("chunk", 0, "chunk index")
		size := fs.String("size", "0", "chunk size")
		_ = fs.Parse(args)
		n, err := parseSize(*size)
		if err != nil {
			fail(err)
		}
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.AuthorizeChunkUpload(ctx, &api.AuthorizeChunkUploadRequest{
			TransferID: *id, FileID: *file, ChunkIndex: uint32(*chunk), ChunkSize: n,
		})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "upload":
		cmdUpload(args, *addr, *caPath, *insecure)

	case "progress":
		fs := flag.NewFlagSet("progress", flag.ExitOnError)
		id := fs.String("id", "", "transfer id (uuid)")
		files := fs.Uint("files", 0, "files completed")
		bytes := fs.String("bytes", "0", "bytes uploaded")
		_ = fs.Parse(args)
		n, err := parseSize(*bytes)
		if err != nil {
			fail(err)
		}
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.RecordChunkProgress(ctx, &api.RecordChunkProgressRequest{TransferID: *id, Files: uint32(*files), Bytes: n})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "complete":
		fs := flag.NewFlagSet("complete", flag.ExitOnError)
		id := fs.String("id", "", "transfer id (uuid)")
		_ = fs.Parse(args)
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.CompleteTransfer(ctx, &api.CompleteTransferRequest{TransferID: *id})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	case "reconcile":
		fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
		id := fs.String("id", "", "transfer id (uuid)")
		_ = fs.Parse(args)
		cc, cli := authed()
		defer cc.Close()
		out, err := cli.ReconcileCharge(ctx, &api.ReconcileChargeRequest{TransferID: *id})
		if err != nil {
			fail(err)
		}
		printJSON(out)

	default:
		usage()
	}
}

// ---- helpers ----

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

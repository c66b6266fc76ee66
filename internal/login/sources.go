package login

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/browser"
	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
)

// TokenSource looks for an auth token in one place. An empty string means
// not found; errors are logged by the caller and treated as not found.
type TokenSource struct {
	Name string
	Find func(ctx context.Context, s browser.Session) (string, error)
}

var (
	storageKeys = []string{"Authorization", "auth_token", "token", "authorization", "access_token"}
	globalNames = []string{"authToken", "token", "AUTH_TOKEN", "authorization", "accessToken"}
	metaNames   = []string{"csrf-token", "token", "authorization"}

	scriptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)token["']?\s*[:=]\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?i)authToken["']?\s*[:=]\s*["']([^"']+)["']`),
	}
)

// Expressions always evaluate to a string so that a missing value never
// surfaces as a JS null or undefined.
func storageExpr(store, key string) string {
	return fmt.Sprintf(`(window.%s.getItem(%q) || "")`, store, key)
}

func globalExpr(name string) string {
	return fmt.Sprintf(`(typeof window[%q] === "string" ? window[%q] : "")`, name, name)
}

func metaExpr(name string) string {
	return fmt.Sprintf(`((document.querySelector('meta[name=%q]') || {}).content || "")`, name)
}

const scriptsExpr = `Array.from(document.scripts).map(s => s.textContent || "").join("\n")`

const storageKeysExpr = `({local: Object.keys(localStorage), session: Object.keys(sessionStorage), scripts: document.scripts.length})`

// DefaultSources returns the token sources in priority order. A usable
// override short-circuits every browser lookup.
func DefaultSources(override string) []TokenSource {
	var out []TokenSource
	if credentials.IsUsableToken(override) {
		out = append(out, TokenSource{Name: "override", Find: func(context.Context, browser.Session) (string, error) {
			return strings.TrimSpace(override), nil
		}})
	}
	return append(out,
		TokenSource{Name: "storage", Find: findInStorage},
		TokenSource{Name: "globals", Find: findInGlobals},
		TokenSource{Name: "meta", Find: findInMeta},
		TokenSource{Name: "scripts", Find: findInScripts},
	)
}

func evalString(ctx context.Context, s browser.Session, expr string) (string, error) {
	var v string
	if err := s.Evaluate(ctx, expr, &v); err != nil {
		return "", err
	}
	return v, nil
}

func firstUsable(ctx context.Context, s browser.Session, exprs []string) (string, error) {
	for _, expr := range exprs {
		v, err := evalString(ctx, s, expr)
		if err != nil {
			return "", err
		}
		if credentials.IsUsableToken(v) {
			return v, nil
		}
	}
	return "", nil
}

func findInStorage(ctx context.Context, s browser.Session) (string, error) {
	exprs := make([]string, 0, 2*len(storageKeys))
	for _, k := range storageKeys {
		exprs = append(exprs, storageExpr("localStorage", k), storageExpr("sessionStorage", k))
	}
	return firstUsable(ctx, s, exprs)
}

func findInGlobals(ctx context.Context, s browser.Session) (string, error) {
	exprs := make([]string, 0, len(globalNames))
	for _, n := range globalNames {
		exprs = append(exprs, globalExpr(n))
	}
	return firstUsable(ctx, s, exprs)
}

func findInMeta(ctx context.Context, s browser.Session) (string, error) {
	exprs := make([]string, 0, len(metaNames))
	for _, n := range metaNames {
		exprs = append(exprs, metaExpr(n))
	}
	return firstUsable(ctx, s, exprs)
}

func findInScripts(ctx context.Context, s browser.Session) (string, error) {
	text, err := evalString(ctx, s, scriptsExpr)
	if err != nil {
		return "", err
	}
	return MatchScriptToken(text), nil
}

// MatchScriptToken returns the first token-shaped assignment in script text.
func MatchScriptToken(text string) string {
	for _, re := range scriptPatterns {
		m := re.FindStringSubmatch(text)
		if len(m) == 2 && credentials.IsUsableToken(m[1]) {
			return m[1]
		}
	}
	return ""
}

// ExtractToken walks sources in order and returns the first usable token
// together with the name of the source that produced it.
func ExtractToken(ctx context.Context, s browser.Session, sources []TokenSource, log zerolog.Logger) (string, string, bool) {
	for _, src := range sources {
		tok, err := src.Find(ctx, s)
		if err != nil {
			log.Debug().Err(err).Str("source", src.Name).Msg("token source failed")
			continue
		}
		if credentials.IsUsableToken(tok) {
			log.Info().Str("source", src.Name).Int("token_len", len(tok)).Msg("found auth token")
			return tok, src.Name, true
		}
	}
	return "", "", false
}

type storageDiagnostics struct {
	Local   []string `json:"local"`
	Session []string `json:"session"`
	Scripts int      `json:"scripts"`
}

// logDiagnostics records what the page exposed when no token was found.
func logDiagnostics(ctx context.Context, s browser.Session, log zerolog.Logger) {
	var d storageDiagnostics
	if err := s.Evaluate(ctx, storageKeysExpr, &d); err != nil {
		log.Debug().Err(err).Msg("could not read storage diagnostics")
	}
	u, _ := s.CurrentURL(ctx)
	log.Warn().
		Strs("local_storage_keys", d.Local).
		Strs("session_storage_keys", d.Session).
		Int("script_tags", d.Scripts).
		Str("url", u).
		Msg("could not extract auth token; copy the Authorization header of an API request from the browser devtools into AUTH_TOKEN")
}

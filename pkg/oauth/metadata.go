package oauth

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// MetadataPath is where client metadata is served.
const MetadataPath = "/.well-known/oauth-client-metadata"

// ClientMetadata is an OAuth client metadata document (RFC 7591 fields).
type ClientMetadata struct {
	ClientID                string   `json:"client_id"`
	ClientURI               string   `json:"client_uri"`
	RedirectURIs            []string `json:"redirect_uris"`
	ResponseTypes           []string `json:"response_types"`
	GrantTypes              []string `json:"grant_types"`
	ApplicationType         string   `json:"application_type"`
	ClientName              string   `json:"client_name"`
	LogoURI                 string   `json:"logo_uri,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// MetadataOptions describe the client being published.
type MetadataOptions struct {
	// Origin is the public origin of the application. When empty the
	// handler derives it from the request.
	Origin string

	ClientName string

	// LogoPath is resolved against the origin.
	LogoPath string

	Scopes []string
}

// NewClientMetadata builds the metadata document for origin. Loopback
// origins follow the native-app rules: the client URI uses
// "http://localhost" without a port, and redirect URIs use the loopback IP
// literal instead of "localhost".
func NewClientMetadata(origin string, opts MetadataOptions) (*ClientMetadata, error) {
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Scheme == "" || originURL.Host == "" {
		return nil, fmt.Errorf("%w: invalid origin %q", ErrInvalidConfiguration, origin)
	}
	originURL = originURL.ResolveReference(&url.URL{Path: "/"})

	clientURI := *originURL
	redirectURI := *originURL

	if isLoopback(originURL.Hostname()) {
		clientURI = url.URL{Scheme: "http", Host: "localhost", Path: originURL.Path}

		host := loopbackIP(originURL.Hostname())
		if port := originURL.Port(); port != "" {
			host = net.JoinHostPort(host, port)
		} else if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		redirectURI.Host = host
	}

	md := &ClientMetadata{
		ClientID:        clientURI.String(),
		ClientURI:       clientURI.String(),
		RedirectURIs:    []string{redirectURI.String()},
		ResponseTypes:   []string{"code id_token", "code"},
		GrantTypes:      []string{"authorization_code"},
		ApplicationType: "web",
		ClientName:      opts.ClientName,
		Scope:           strings.Join(opts.Scopes, " "),
	}

	if opts.LogoPath != "" {
		md.LogoURI = originURL.ResolveReference(&url.URL{Path: opts.LogoPath}).String()
	}

	return md, nil
}

// MetadataHandler serves the client metadata document.
func MetadataHandler(opts MetadataOptions, log *logrus.Entry) http.Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "oauth")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		origin := opts.Origin
		if origin == "" {
			origin = requestOrigin(r)
		}

		md, err := NewClientMetadata(origin, opts)
		if err != nil {
			log.WithError(err).Warn("Failed to build client metadata")
			http.Error(w, "invalid origin", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(md)
	})
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/"
}

func isLoopback(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

func loopbackIP(hostname string) string {
	if hostname == "localhost" {
		return "127.0.0.1"
	}
	return hostname
}

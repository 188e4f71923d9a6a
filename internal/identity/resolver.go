package identity

import (
	"net"
	"net/http"
	"strings"

	"github.com/keithlinneman/babyshower-web/internal/httpmw"
	"github.com/keithlinneman/babyshower-web/internal/log"
)

type ResolverOptions struct {
	// Verifier is optional; without it every request resolves to an address.
	Verifier Verifier

	// AddressHeader, when set, names a header that overrides the connection
	// address (e.g. CF-Connecting-IP). Only use it when the edge in front of
	// this service always sets the header.
	AddressHeader string

	// OnVerifyFailure is called for every bearer token that fails to verify.
	OnVerifyFailure func(err error)
}

type Resolver struct {
	opts ResolverOptions
}

func NewResolver(opts ResolverOptions) *Resolver {
	return &Resolver{opts: opts}
}

// Resolve never fails. A bad or unverifiable token is logged and the request
// is treated as anonymous.
func (res *Resolver) Resolve(r *http.Request) Identity {
	if token, ok := bearerToken(r); ok && res.opts.Verifier != nil {
		sub, err := res.opts.Verifier.Verify(r.Context(), token)
		if err == nil && sub != "" {
			return User(sub)
		}
		if err == nil {
			err = ErrEmptySubject
		}
		// never log the token itself
		log.FromContext(r.Context()).Warn(r.Context(), "bearer token verification failed, using client address",
			"reason", err.Error(),
		)
		if res.opts.OnVerifyFailure != nil {
			res.opts.OnVerifyFailure(err)
		}
	}
	return Address(res.address(r))
}

func (res *Resolver) address(r *http.Request) string {
	if res.opts.AddressHeader != "" {
		if v := r.Header.Get(res.opts.AddressHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			first = strings.TrimSpace(first)
			if net.ParseIP(first) != nil {
				return first
			}
		}
	}
	if ip := httpmw.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return Unknown
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

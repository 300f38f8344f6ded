// Package announce turns a crate name into a published post.
package announce

import (
	"context"
	"fmt"
	"strings"

	"github.com/blackwell-systems/cratebot/internal/logger"
	"github.com/blackwell-systems/cratebot/internal/registry"
	"github.com/blackwell-systems/cratebot/internal/social"
)

const ellipsis = "…"

// DetailFetcher loads full metadata for one crate.
type DetailFetcher interface {
	GetCrate(ctx context.Context, name string) (*registry.Detail, error)
}

// Announcer fetches crate details and publishes them.
type Announcer struct {
	registry DetailFetcher
	poster   social.Poster
	log      logger.Logger
}

// New creates an Announcer.
func New(reg DetailFetcher, poster social.Poster, log logger.Logger) *Announcer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Announcer{registry: reg, poster: poster, log: log}
}

// Announce publishes a post about name and returns name on success. Nothing
// is published when the detail fetch fails.
func (a *Announcer) Announce(ctx context.Context, name string) (string, error) {
	detail, err := a.registry.GetCrate(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to fetch details for %s: %w", name, err)
	}

	text := Compose(detail)
	a.log.Debug("composed announcement", logger.String("name", name), logger.Int("length", social.Length(text)))

	id, err := a.poster.Post(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to announce %s: %w", name, err)
	}

	a.log.Info("announced crate", logger.String("name", name), logger.String("post_id", id))
	return name, nil
}

// Compose formats the announcement text for d:
//
//	serde v1.0.200
//	A generic serialization/deserialization framework
//	by David Tolnay, serde-rs/publish
//	https://crates.io/crates/serde
//
// Owners are listed by name without "@" so nobody is mentioned. The result
// always satisfies social.Fits. The description is shortened first; if that
// is not enough the owner line is dropped.
func Compose(d *registry.Detail) string {
	header := d.Name
	if d.MaxVersion != "" {
		header += " v" + d.MaxVersion
	}
	link := d.URL()
	desc := strings.Join(strings.Fields(d.Description), " ")
	owners := ownerLine(d.Owners)

	build := func(desc, owners string) string {
		lines := []string{header}
		if desc != "" {
			lines = append(lines, desc)
		}
		if owners != "" {
			lines = append(lines, owners)
		}
		lines = append(lines, link)
		return strings.Join(lines, "\n")
	}

	text := build(desc, owners)
	if social.Fits(text) {
		return text
	}

	for _, by := range []string{owners, ""} {
		if desc != "" {
			short := shorten(desc, func(s string) bool { return social.Fits(build(s, by)) })
			if short != "" {
				return build(short, by)
			}
		}
		if text := build("", by); social.Fits(text) {
			return text
		}
	}

	// Only a pathological name gets here.
	return shorten(build("", ""), social.Fits)
}

func ownerLine(owners []registry.Owner) string {
	names := make([]string, 0, len(owners))
	for _, o := range owners {
		if n := ownerName(o); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "by " + strings.Join(names, ", ")
}

// ownerName renders an owner without "@". Teams use their login
// "github:org:team" and are shown as "org/team".
func ownerName(o registry.Owner) string {
	var n string
	if o.Kind == "team" {
		parts := strings.Split(o.Login, ":")
		if len(parts) != 3 {
			return ""
		}
		n = parts[1] + "/" + parts[2]
	} else {
		n = strings.TrimSpace(o.Name)
		if n == "" {
			n = o.Login
		}
	}
	return strings.ReplaceAll(n, "@", "")
}

// shorten returns the longest prefix of s, ending in an ellipsis, that
// satisfies fits. It returns "" when no such prefix exists.
func shorten(s string, fits func(string) bool) string {
	r := []rune(s)
	// Every rune weighs at least one, so longer prefixes cannot fit.
	for keep := min(len(r)-1, social.MaxPostLength); keep > 0; keep-- {
		cand := strings.TrimRight(string(r[:keep]), " ") + ellipsis
		if fits(cand) {
			return cand
		}
	}
	return ""
}

package announce

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/cratebot/internal/logger"
	"github.com/blackwell-systems/cratebot/internal/registry"
	"github.com/blackwell-systems/cratebot/internal/social"
)

type fakeRegistry struct {
	details map[string]*registry.Detail
	err     error
}

func (f *fakeRegistry) GetCrate(_ context.Context, name string) (*registry.Detail, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[name]
	if !ok {
		return nil, &registry.HTTPError{StatusCode: 404, URL: "/api/v1/crates/" + name}
	}
	return d, nil
}

type fakePoster struct {
	posts []string
	err   error
}

func (f *fakePoster) Post(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.posts = append(f.posts, text)
	return "42", nil
}

func serdeDetail() *registry.Detail {
	return &registry.Detail{
		Crate: registry.Crate{
			Name:        "serde",
			Description: "A generic serialization/deserialization framework",
			MaxVersion:  "1.0.200",
		},
		Owners: []registry.Owner{
			{Login: "dtolnay", Name: "David Tolnay", Kind: "user"},
			{Login: "github:serde-rs:publish", Name: "publish", Kind: "team"},
		},
	}
}

func TestCompose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		detail *registry.Detail
		want   string
	}{
		{
			name:   "all fields",
			detail: serdeDetail(),
			want: "serde v1.0.200\n" +
				"A generic serialization/deserialization framework\n" +
				"by David Tolnay, serde-rs/publish\n" +
				"https://crates.io/crates/serde",
		},
		{
			name:   "name only",
			detail: &registry.Detail{Crate: registry.Crate{Name: "tiny"}},
			want:   "tiny\nhttps://crates.io/crates/tiny",
		},
		{
			name: "description whitespace collapsed",
			detail: &registry.Detail{
				Crate: registry.Crate{Name: "ws", MaxVersion: "0.1.0", Description: "  multi\n  line\tdesc "},
			},
			want: "ws v0.1.0\nmulti line desc\nhttps://crates.io/crates/ws",
		},
		{
			name: "owners without login skipped",
			detail: &registry.Detail{
				Crate:  registry.Crate{Name: "teamed", MaxVersion: "2.0.0"},
				Owners: []registry.Owner{{Login: ""}, {Login: "alice"}},
			},
			want: "teamed v2.0.0\nby alice\nhttps://crates.io/crates/teamed",
		},
		{
			name: "teams shown as org and team",
			detail: &registry.Detail{
				Crate: registry.Crate{Name: "tokio", MaxVersion: "1.38.0"},
				Owners: []registry.Owner{
					{Login: "carllerche", Kind: "user"},
					{Login: "github:tokio-rs:core", Kind: "team"},
				},
			},
			want: "tokio v1.38.0\nby carllerche, tokio-rs/core\nhttps://crates.io/crates/tokio",
		},
		{
			name: "malformed team login skipped and at signs removed",
			detail: &registry.Detail{
				Crate: registry.Crate{Name: "odd"},
				Owners: []registry.Owner{
					{Login: "tokio-rs", Kind: "team"},
					{Login: "bob", Name: "@bob", Kind: "user"},
				},
			},
			want: "odd\nby bob\nhttps://crates.io/crates/odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Compose(tt.detail)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "@")
		})
	}
}

func TestCompose_TruncatesDescription(t *testing.T) {
	t.Parallel()

	d := serdeDetail()
	d.Description = strings.Repeat("word ", 100)

	text := Compose(d)
	assert.True(t, social.Fits(text))
	assert.GreaterOrEqual(t, social.Length(text), social.MaxPostLength-5)
	assert.Contains(t, text, ellipsis+"\nby David Tolnay, serde-rs/publish\n")
	assert.True(t, strings.HasSuffix(text, "https://crates.io/crates/serde"))
}

func TestCompose_WeighsWideCharacters(t *testing.T) {
	t.Parallel()

	d := serdeDetail()
	d.Description = strings.Repeat("日本", 150)

	text := Compose(d)
	assert.True(t, social.Fits(text), "weighted length %d", social.Length(text))
	assert.Less(t, utf8.RuneCountInString(text), social.MaxPostLength)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, ellipsis)
}

func TestCompose_DropsOwnersWhenTooMany(t *testing.T) {
	t.Parallel()

	d := serdeDetail()
	d.Description = "short"
	d.Owners = nil
	for i := 0; i < 40; i++ {
		d.Owners = append(d.Owners, registry.Owner{Login: "maintainer-" + strings.Repeat("x", 3)})
	}

	text := Compose(d)
	assert.True(t, social.Fits(text))
	assert.NotContains(t, text, "by ")
	assert.Contains(t, text, "short")
	assert.True(t, strings.HasSuffix(text, "https://crates.io/crates/serde"))
}

func TestAnnounce(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{details: map[string]*registry.Detail{"serde": serdeDetail()}}
	poster := &fakePoster{}
	a := New(reg, poster, logger.NewNop())

	name, err := a.Announce(context.Background(), "serde")
	require.NoError(t, err)
	assert.Equal(t, "serde", name)
	require.Len(t, poster.posts, 1)
	assert.Equal(t, Compose(serdeDetail()), poster.posts[0])
}

func TestAnnounce_DetailFailureDoesNotPost(t *testing.T) {
	t.Parallel()

	poster := &fakePoster{}
	a := New(&fakeRegistry{}, poster, nil)

	_, err := a.Announce(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	var httpErr *registry.HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.Empty(t, poster.posts)
}

func TestAnnounce_PostFailure(t *testing.T) {
	t.Parallel()

	postErr := errors.New("service unavailable")
	reg := &fakeRegistry{details: map[string]*registry.Detail{"serde": serdeDetail()}}
	a := New(reg, &fakePoster{err: postErr}, nil)

	name, err := a.Announce(context.Background(), "serde")
	require.ErrorIs(t, err, postErr)
	assert.Empty(t, name)
}

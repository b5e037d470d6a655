package imageurl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	testCases := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name: "certified table image",
			input: []string{
				"https://cdn.example.net/cert/96098359/table-image-certified.png",
				"https://cdn.example.net/cert/96098359/front.jpg",
			},
			expected: []string{"https://cdn.example.net/cert/96098359/front.jpg"},
		},
		{
			name: "same filename on different hosts",
			input: []string{
				"https://a.example.net/cert/1/large/front.jpg",
				"https://b.example.net/cert/1/large/front.jpg",
				"https://a.example.net/cert/1/large/back.jpg",
			},
			expected: []string{
				"https://a.example.net/cert/1/large/front.jpg",
				"https://a.example.net/cert/1/large/back.jpg",
			},
		},
		{
			name: "site assets",
			input: []string{
				"https://www.example.com/static/Logo.svg",
				"https://www.example.com/og-image.jpg",
				"https://www.example.com/social/front.jpg",
				"https://www.example.com/img/spinner.gif",
				"https://www.example.com/img/share-card.png",
			},
			expected: []string{},
		},
		{
			name: "urls without a filename are kept",
			input: []string{
				"https://www.example.com/cert/1/",
				"https://www.example.com/cert/2/",
			},
			expected: []string{
				"https://www.example.com/cert/1/",
				"https://www.example.com/cert/2/",
			},
		},
		{
			name: "extensionless endpoints share a filename",
			input: []string{
				"https://www.example.com/api/cert/96098359/front",
				"https://www.example.com/cert/96098359/front",
				"https://www.example.com/api/cert/96098359/back",
			},
			expected: []string{
				"https://www.example.com/api/cert/96098359/front",
				"https://www.example.com/api/cert/96098359/back",
			},
		},
	}

	for _, test := range testCases {
		got := Clean(test.input)
		if diff := cmp.Diff(test.expected, got); diff != "" {
			t.Fatal(test.name, diff)
		}
	}
}

func TestCleanInvariants(t *testing.T) {
	input := []string{
		"https://a/cert/1/large/front.jpg",
		"https://a/cert/1/small/front.jpg",
		"https://a/cert/1/icon.png",
		"https://a/cert/1/back.jpg",
		"https://c/back.jpg?x=1",
		"https://a/api/cert/1/front",
		"https://a/cert/1/front",
		"https://a/api/cert/1/back",
	}
	seen := map[string]bool{}
	for _, u := range Clean(input) {
		name := Filename(u)
		require.False(t, seen[name], "duplicate filename %q", name)
		seen[name] = true
		require.False(t, IsNoise(u), u)
	}
	require.Len(t, seen, 4)
}

func TestIsLikelyPhotograph(t *testing.T) {
	testCases := map[string]bool{
		"https://cdn.example.net/cert/1/small/front.jpg": true,
		"https://example.com/img/highres-front.webp":     true,
		"https://example.com/img/card-back.png":          true,
		"https://example.com/img/holder.jpg":             false,
		"https://example.com/img/brand-logo-large.png":   false,
		"https://example.com/img/flag-us.jpg":            false,
		"https://example.com/cert/1/large":               false,
	}
	for u, expected := range testCases {
		require.Equal(t, expected, IsLikelyPhotograph(u), u)
	}
}

func TestPriority(t *testing.T) {
	require.Equal(t, 0, Priority("https://x/HighRes/front.jpg"))
	require.Equal(t, 0, Priority("https://x/high-res-large/front.jpg"))
	require.Equal(t, 1, Priority("https://x/cert/1/large/front.jpg"))
	require.Equal(t, 1, Priority("https://x/original/front.jpg"))
	require.Equal(t, 2, Priority("https://x/cert/1/front.jpg"))
	require.Equal(t, 3, Priority("https://x/cert/1/small/front.jpg"))
	require.Equal(t, 3, Priority("https://x/thumbs/front.jpg"))
}

func TestSelectFaces(t *testing.T) {
	input := []string{
		"https://x/cert/1/extra.jpg",
		"https://x/cert/1/back.jpg",
		"https://x/cert/1/front.jpg",
		"https://x/cert/1/reverse-2.jpg",
	}
	require.Equal(t, []string{
		"https://x/cert/1/front.jpg",
		"https://x/cert/1/back.jpg",
	}, SelectFaces(input, 2))
	require.Equal(t, []string{
		"https://x/cert/1/front.jpg",
		"https://x/cert/1/back.jpg",
		"https://x/cert/1/reverse-2.jpg",
		"https://x/cert/1/extra.jpg",
	}, SelectFaces(input, 0))
	require.Equal(t, FaceUnknown, FaceOf("https://x/cert/1/frontier.jpg"))
}

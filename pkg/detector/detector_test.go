package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess(t *testing.T) {
	d := NewWithConfig(DetectorConfig{
		ExcludedPatterns: []string{"*.tmp", "node_modules"},
		SkipHidden:       true,
	})

	tests := []struct {
		path     string
		expected bool
	}{
		{"/docs/report.pdf", true},
		{"/docs/scan.PNG", true},
		{"/docs/readme.md", true},
		{"/docs/page.html", true},
		{"/docs/archive.zip", false},
		{"/docs/binary.exe", false},
		{"/docs/draft.tmp", false},
		{"/code/node_modules/pkg/readme.md", false},
		{"/docs/.hidden.pdf", false},
		{"/docs/noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.ShouldProcess(tt.path))
		})
	}
}

func TestShouldProcessCustomExtensions(t *testing.T) {
	d := NewWithConfig(DetectorConfig{AllowedExtensions: []string{".pdf"}})

	assert.True(t, d.ShouldProcess("/docs/a.pdf"))
	assert.False(t, d.ShouldProcess("/docs/b.png"))
	// Hidden files are allowed unless SkipHidden is set
	assert.True(t, d.ShouldProcess("/docs/.sneaky.pdf"))
}

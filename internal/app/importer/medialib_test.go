package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Major Version</key><integer>1</integer>
	<key>Tracks</key>
	<dict>
		<key>1002</key>
		<dict>
			<key>Name</key><string>Paranoid Android</string>
			<key>Artist</key><string>Radiohead</string>
			<key>Album</key><string>OK Computer</string>
			<key>Album Artist</key><string>Radiohead</string>
			<key>Total Time</key><integer>386000</integer>
			<key>Track Number</key><integer>2</integer>
			<key>Disc Number</key><integer>1</integer>
			<key>Play Date UTC</key><date>2026-08-20T10:06:00Z</date>
		</dict>
		<key>1001</key>
		<dict>
			<key>Name</key><string>Airbag</string>
			<key>Artist</key><string>Radiohead</string>
			<key>Album</key><string>OK Computer</string>
			<key>Total Time</key><integer>284000</integer>
			<key>Track Number</key><integer>1</integer>
			<key>Disc Number</key><integer>1</integer>
		</dict>
		<key>1003</key>
		<dict>
			<key>Name</key><string>Untitled Bonus</string>
			<key>Artist</key><string>Radiohead</string>
			<key>Track Number</key><integer>1</integer>
			<key>Disc Number</key><integer>2</integer>
		</dict>
		<key>2001</key>
		<dict>
			<key>Name</key><string>Some Podcast Episode</string>
			<key>Genre</key><string>Podcast</string>
		</dict>
	</dict>
	<key>Playlists</key>
	<array>
		<dict><key>Name</key><string>Library</string></dict>
	</array>
</dict>
</plist>
`

func TestMediaLibraryImporter_Read(t *testing.T) {
	path := writeTempFile(t, "library.xml", libraryXML)

	records, err := NewMediaLibrary().Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 3, "podcast entry without an artist is skipped")

	// Release order: disc 1 tracks 1-2, then disc 2.
	assert.Equal(t, "Airbag", records[0].Track)
	assert.Equal(t, "Paranoid Android", records[1].Track)
	assert.Equal(t, "Untitled Bonus", records[2].Track)

	assert.Equal(t, 284*time.Second, records[0].Duration)
	assert.Equal(t, "Radiohead", records[1].AlbumArtist)
	assert.Equal(t, time.Date(2026, 8, 20, 10, 6, 0, 0, time.UTC), records[1].PlayedAt)
	assert.True(t, records[0].PlayedAt.IsZero(), "no play date recorded")
}

func TestMediaLibraryImporter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "No tracks dict",
			content: `<?xml version="1.0"?><plist version="1.0"><dict><key>Major Version</key><integer>1</integer></dict></plist>`,
		},
		{
			name:    "Empty tracks dict",
			content: `<?xml version="1.0"?><plist version="1.0"><dict><key>Tracks</key><dict/></dict></plist>`,
		},
		{
			name:    "Not XML at all",
			content: "artist,track\nRadiohead,Airbag\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "library.xml", tt.content)
			_, err := NewMediaLibrary().Read(context.Background(), path)
			assert.Error(t, err)
		})
	}
}

func TestRegistry(t *testing.T) {
	registered := GetRegistered()
	for _, name := range []string{"csv", "medialib", "tags"} {
		require.Contains(t, registered, name)
		imp := New(name)
		require.NotNil(t, imp)
		assert.Equal(t, name, imp.Name())
		assert.NotEmpty(t, imp.Description())
	}
	assert.Nil(t, New("unknown"))
}

func TestTagsImporter_EmptyDirectory(t *testing.T) {
	_, err := NewTags().Read(context.Background(), t.TempDir())
	assert.Error(t, err)
}

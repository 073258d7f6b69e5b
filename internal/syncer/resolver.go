package syncer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/postersync/postersync/internal/naming"
	"github.com/postersync/postersync/internal/pathutil"
	"github.com/postersync/postersync/internal/remote"
)

// ErrNoMatch is returned when no existing remote folder matches a title.
// The resolver never creates title folders: remote naming belongs to the
// media server's own cataloguing, and blind creation would fragment it
// with near-duplicate titles.
var ErrNoMatch = errors.New("no matching remote folder")

// ResolveFolder lists the entries directly under remoteBase and returns the
// name of the first directory whose normalized key equals the title's key.
// The listing is taken fresh on every call so folders created remotely
// between passes are picked up. removeYear is set for TV comparisons only,
// where remote folders commonly carry a release year local folders omit.
func ResolveFolder(st remote.Storage, remoteBase, title string, removeYear bool) (string, error) {
	entries, err := st.ListDirectory(remoteBase)
	if err != nil {
		return "", fmt.Errorf("list remote base %s: %w", remoteBase, err)
	}

	want := naming.Normalize(title, removeYear)
	for _, entry := range entries {
		if !entry.IsDir {
			continue
		}
		if naming.Normalize(entry.Name, removeYear) == want {
			return entry.Name, nil
		}
	}
	return "", ErrNoMatch
}

// ResolveSeasonFolder picks the season subfolder name inside a matched title
// folder. An existing folder is reused whether it is zero-padded or not;
// when neither form exists the zero-padded name is returned with created
// semantics left to the caller (dry runs must not create it).
func ResolveSeasonFolder(st remote.Storage, titleDir, seasonID string) (name string, exists bool, err error) {
	padded := "Season " + seasonID

	candidates := []string{padded}
	if n, convErr := strconv.Atoi(seasonID); convErr == nil {
		unpadded := fmt.Sprintf("Season %d", n)
		if unpadded != padded {
			candidates = []string{unpadded, padded}
		}
	}

	for _, candidate := range candidates {
		ok, err := st.PathExists(pathutil.JoinRemote(titleDir, candidate))
		if err != nil {
			return "", false, fmt.Errorf("check season folder %s: %w", candidate, err)
		}
		if ok {
			return candidate, true, nil
		}
	}
	return padded, false, nil
}

// SeasonFilename is the media-server filename convention for a season poster.
func SeasonFilename(seasonID, ext string) string {
	return "season" + seasonID + strings.ToLower(ext)
}

// PosterFilename is the media-server filename convention for a series,
// movie or collection poster.
func PosterFilename(ext string) string {
	return "poster" + strings.ToLower(ext)
}

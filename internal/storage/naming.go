package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	objectRoot        = "profile_pictures"
	archiveSegment    = "archive"
	archiveTimeLayout = "20060102_150405"
	archiveNamePrefix = "profile_"
	activeObjectStem  = "profile"
)

// ActiveObjectName is the stable name of a user's live profile picture. It is
// overwritten on every re-upload so the externally visible URL never changes.
func ActiveObjectName(userID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", objectRoot, userID, activeObjectStem, ext)
}

// ArchiveObjectName is the timestamped historical copy, unique per upload at
// second granularity. Two uploads for the same user within one second collide
// and overwrite; that is a documented limitation of the naming scheme.
func ArchiveObjectName(userID, ext string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s%s%s", objectRoot, userID, archiveSegment, archiveNamePrefix, t.Format(archiveTimeLayout), ext)
}

// UserPrefix lists everything stored for one user.
func UserPrefix(userID string) string {
	return fmt.Sprintf("%s/%s/", objectRoot, userID)
}

// RootPrefix lists every stored profile picture object.
func RootPrefix() string {
	return objectRoot + "/"
}

// IsArchiveObject reports whether an object name belongs to the archive
// naming scheme.
func IsArchiveObject(objectName string) bool {
	_, ok := ArchiveTimestamp(objectName)
	return ok
}

// ArchiveTimestamp parses the upload timestamp back out of an archive object
// name. Returns false for anything that does not match the scheme.
func ArchiveTimestamp(objectName string) (time.Time, bool) {
	dir, base := path.Split(objectName)
	if !strings.HasSuffix(strings.TrimSuffix(dir, "/"), "/"+archiveSegment) {
		return time.Time{}, false
	}
	if !strings.HasPrefix(base, archiveNamePrefix) {
		return time.Time{}, false
	}

	stamp := strings.TrimPrefix(base, archiveNamePrefix)
	if ext := path.Ext(stamp); ext != "" {
		stamp = strings.TrimSuffix(stamp, ext)
	}

	t, err := time.Parse(archiveTimeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

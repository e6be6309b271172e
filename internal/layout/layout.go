// Package layout encodes where pipeline files live:
// <data_dir>/<sub_id>/<scan_id>/ for inputs and a per-tool subfolder below
// it for outputs, every file prefixed <sub_id>_<scan_id>_<uid>_.
package layout

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Subject identifies one acquisition.
type Subject struct {
	SubID  string
	ScanID string
	UID    string
}

// ParseID splits an included id of the form <sub_id>_<scan_id>_<uid>, or
// <sub_id>/<scan_id>/<uid> when it contains a slash. The uid may itself
// contain the separator.
func ParseID(id string) (Subject, error) {
	sep := "_"
	if strings.Contains(id, "/") {
		sep = "/"
	}
	parts := strings.SplitN(id, sep, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Subject{}, fmt.Errorf("included id %q is not of the form <sub_id>_<scan_id>_<uid>", id)
	}
	return Subject{SubID: parts[0], ScanID: parts[1], UID: parts[2]}, nil
}

func (s Subject) String() string { return s.SubID + "_" + s.ScanID + "_" + s.UID }

// Prefix is prepended to every file of the subject.
func (s Subject) Prefix() string { return s.String() + "_" }

// ScanDir is the subject's scan directory under dataDir.
func (s Subject) ScanDir(dataDir string) string {
	return filepath.Join(dataDir, s.SubID, s.ScanID)
}

// File is the path of a named input file of the subject.
func (s Subject) File(dataDir, name string) string {
	return filepath.Join(s.ScanDir(dataDir), s.Prefix()+name)
}

// OutputDir places a tool's outputs next to its source: in subfolder below
// the source's directory, or in that directory when the source already
// lives in subfolder.
func OutputDir(source, subfolder string) string {
	dir := filepath.Dir(source)
	if subfolder == "" || filepath.Base(dir) == subfolder {
		return dir
	}
	return filepath.Join(dir, subfolder)
}

// ImageStem is the path of a NIfTI image without its .nii or .nii.gz
// extension.
func ImageStem(path string) string {
	for _, ext := range []string{".nii.gz", ".nii"} {
		if strings.HasSuffix(path, ext) && len(filepath.Base(path)) > len(ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the coarse class of an uploaded file.
type Kind int

const (
	KindOther Kind = iota
	KindPDF
	KindJPEG
	KindPNG
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	default:
		return "other"
	}
}

// IsImage reports whether k is a raster format the suite can embed.
func (k Kind) IsImage() bool { return k == KindJPEG || k == KindPNG }

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	Name        string
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect classifies data by its magic bytes. The name is only used for
// logging and error messages.
func (d *Detector) Detect(name string, data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{Name: name, MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info, mtype)
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && info.Kind != KindOther && !sameExt(ext, info.Extension) {
		log.Debug().Str("file", name).Str("ext", ext).Str("mime", info.MIMEType).Msg("extension does not match content")
	}
	return info
}

// DetectFile classifies a file on disk.
func (d *Detector) DetectFile(path string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{Name: filepath.Base(path), MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info, mtype)
	return info, nil
}

func (d *Detector) classify(info *FileTypeInfo, mtype *mimetype.MIME) {
	switch {
	case mtype.Is("application/pdf"):
		info.Kind = KindPDF
		info.Description = "PDF document"
	case mtype.Is("image/jpeg"):
		info.Kind = KindJPEG
		info.Description = "JPEG image"
	case mtype.Is("image/png"):
		info.Kind = KindPNG
		info.Description = "PNG image"
	default:
		info.Kind = KindOther
		info.Description = "unsupported file type"
	}
}

func sameExt(a, b string) bool {
	if a == ".jpeg" {
		a = ".jpg"
	}
	if b == ".jpeg" {
		b = ".jpg"
	}
	return a == b
}

// Require returns an error unless info is one of kinds.
func Require(info *FileTypeInfo, kinds ...Kind) error {
	for _, k := range kinds {
		if info.Kind == k {
			return nil
		}
	}
	want := make([]string, len(kinds))
	for i, k := range kinds {
		want[i] = k.String()
	}
	return &MismatchError{Name: info.Name, MIME: info.MIMEType, Want: want}
}

// MismatchError reports an upload of the wrong type.
type MismatchError struct {
	Name string
	MIME string
	Want []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s is not %s", e.Name, e.MIME, strings.Join(e.Want, " or "))
}

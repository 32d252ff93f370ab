package tools

import (
	"fmt"
	"strings"

	"github.com/local/docsuite/internal/scan"
)

// Tool identifies one pipeline; the value doubles as the metrics label.
type Tool string

const (
	ToolMerge    Tool = "merge"
	ToolSplit    Tool = "split"
	ToolFlatten  Tool = "compress"
	ToolPDFToJPG Tool = "pdf_to_jpg"
	ToolJPGToPDF Tool = "jpg_to_pdf"
	ToolScan     Tool = "scanner"
	ToolSign     Tool = "sign"
)

// Fixed output names.
const (
	MergedName = "merged.pdf"
	ImagesName = "images.pdf"
)

// OutputName returns the artifact name a tool gives its output for input
// name. page is 1-based and only used by ToolPDFToJPG.
func OutputName(tool Tool, name string, page int) string {
	switch tool {
	case ToolMerge:
		return MergedName
	case ToolSplit:
		return "split-" + name
	case ToolFlatten:
		return "compressed-" + name
	case ToolSign:
		return "signed-" + name
	case ToolJPGToPDF:
		return ImagesName
	case ToolScan:
		return scan.DocumentName
	case ToolPDFToJPG:
		return fmt.Sprintf("%s-page-%d.jpg", Stem(name), page)
	default:
		return name
	}
}

// Stem strips a trailing ".pdf" in any letter case.
func Stem(name string) string {
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".pdf") {
		return name[:len(name)-4]
	}
	return name
}

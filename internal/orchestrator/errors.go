package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/compose"
	"github.com/local/docsuite/internal/delivery"
	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/filetype"
	"github.com/local/docsuite/internal/imagerender"
	"github.com/local/docsuite/internal/imaging"
	"github.com/local/docsuite/internal/jobs"
	"github.com/local/docsuite/internal/pagerange"
	"github.com/local/docsuite/internal/sign"
	"github.com/local/docsuite/internal/store"
	"github.com/local/docsuite/internal/tools"
)

// statusFor maps an error from any layer to an HTTP status code.
func statusFor(err error) int {
	code, _ := classify(err)
	return code
}

// classify maps an error to its HTTP status and the sentence shown to the
// user. The error text itself stays in the logs.
func classify(err error) (int, string) {
	var (
		tooBig      *http.MaxBytesError
		parseErr    *pagerange.ParseError
		loadErr     *document.LoadError
		mismatch    *filetype.MismatchError
		unsupported *imaging.UnsupportedFormatError
		renderE     *imagerender.RenderError
		copyErr     *compose.CopyError
		delivErr    *delivery.DeliveryError
	)
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("The file is larger than the %s limit.", sizeLabel(tooBig.Limit))
	case errors.Is(err, imagerender.ErrCanvasTooLarge):
		return http.StatusRequestEntityTooLarge, "A page is too large to render."
	case errors.As(err, &mismatch):
		return http.StatusUnsupportedMediaType, fmt.Sprintf("%s is not a %s file.", mismatch.Name, kinds(mismatch.Want))
	case errors.As(err, &unsupported) && unsupported.Name != "":
		return http.StatusUnsupportedMediaType, fmt.Sprintf("%s is not a JPEG or PNG image.", unsupported.Name)
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "Only JPEG and PNG images are supported."
	case errors.As(err, &parseErr), errors.Is(err, pagerange.ErrEmptyRange):
		return http.StatusBadRequest, "Invalid page range: it selects no page of the document."
	case errors.Is(err, errMissingFile), errors.Is(err, http.ErrMissingFile):
		return http.StatusBadRequest, "A required file is missing."
	case errors.Is(err, errBadRef):
		return http.StatusBadRequest, "The file reference is not supported or not allowed."
	case errors.Is(err, errBadForm):
		return http.StatusBadRequest, "A form field is malformed."
	case errors.Is(err, http.ErrNotMultipart):
		return http.StatusBadRequest, "Send the files as multipart/form-data."
	case errors.Is(err, tools.ErrTooFewFiles):
		return http.StatusBadRequest, "Select at least two PDF files to merge."
	case errors.Is(err, tools.ErrUnknownProfile):
		return http.StatusBadRequest, "Unknown compression level. Use extreme, recommended or less."
	case errors.Is(err, tools.ErrNothingToConvert):
		return http.StatusBadRequest, "None of the files could be converted. Upload JPEG or PNG images."
	case errors.Is(err, imaging.ErrUnknownFilter):
		return http.StatusBadRequest, "Unknown filter. Use original, grayscale, bw or magic."
	case errors.Is(err, imaging.ErrEmptyImage):
		return http.StatusBadRequest, "The image is empty."
	case errors.Is(err, sign.ErrNoPlacements):
		return http.StatusBadRequest, "Place the signature on at least one page."
	case errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity, fmt.Sprintf("%s is not a readable PDF.", loadErr.Name)
	case errors.As(err, &renderE), errors.Is(err, tools.ErrAllPagesFailed):
		return http.StatusUnprocessableEntity, "The pages of the document could not be rendered."
	case errors.As(err, &copyErr):
		return http.StatusUnprocessableEntity, "The selected pages could not be copied."
	case errors.Is(err, errFetch) && errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "The referenced file does not exist."
	case errors.Is(err, errFetch):
		return http.StatusBadGateway, "The referenced file could not be fetched."
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Unknown job."
	case errors.Is(err, jobs.ErrNotRunning):
		return http.StatusConflict, "The job is not running."
	case errors.Is(err, jobs.ErrBusy):
		return http.StatusTooManyRequests, "This tool is busy. Try again shortly."
	case errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable, "The server is shutting down. Try again shortly."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The request took too long."
	case errors.As(err, &delivErr):
		return http.StatusBadGateway, "The result could not be delivered."
	default:
		return http.StatusInternalServerError, "Something went wrong on our side."
	}
}

func sizeLabel(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d KB", max(n>>10, 1))
}

func kinds(want []string) string {
	up := make([]string, len(want))
	for i, k := range want {
		up[i] = strings.ToUpper(k)
	}
	return strings.Join(up, " or ")
}

// writeError answers with {"success":false,"error":...}. The technical
// detail is only logged: server-side failures at error, client mistakes
// at info.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := classify(err)
	ev := log.Info()
	if code >= 500 {
		ev = log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("code", code).Msg("request failed")
	if errors.Is(err, context.Canceled) {
		// client went away; nobody reads the body
		return
	}
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

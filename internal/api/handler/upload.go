package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/booktrans/internal/api/response"
	"github.com/kiranshivaraju/booktrans/internal/extract"
	"github.com/kiranshivaraju/booktrans/internal/translation"
)

// multipartOverhead allows for form fields and part headers around the file.
const multipartOverhead = 1 << 20

// NewUploadPDFHandler returns an http.HandlerFunc for POST /api/upload/pdf.
// The form carries the PDF in "file" plus target_language and output_format;
// every page with text becomes one chapter.
func NewUploadPDFHandler(svc TranslationService, ex extract.Extractor, maxFileSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+multipartOverhead)
		defer drain(r.Body)

		if err := r.ParseMultipartForm(maxFileSize + multipartOverhead); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				fileTooLarge(w, maxFileSize)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required",
				map[string]string{"file": "is required"})
			return
		}
		defer file.Close()

		if ct, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type")); ct != "application/pdf" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "file must be a PDF",
				map[string]string{"file": "content type must be application/pdf"})
			return
		}
		if header.Size > maxFileSize {
			fileTooLarge(w, maxFileSize)
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, maxFileSize+1))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read uploaded file", nil)
			return
		}
		if int64(len(data)) > maxFileSize {
			fileTooLarge(w, maxFileSize)
			return
		}

		chapters, err := ex.Extract(r.Context(), data)
		if err != nil {
			switch {
			case errors.Is(err, extract.ErrNoText):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"No extractable text found in PDF", map[string]string{"file": "contains no text"})
			case errors.Is(err, extract.ErrInvalidPDF):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"File is not a readable PDF", map[string]string{"file": "invalid PDF"})
			default:
				writeServiceError(w, err)
			}
			return
		}

		job, err := svc.Submit(r.Context(), translation.SubmitParams{
			Chapters:       chapters,
			TargetLanguage: strings.TrimSpace(r.FormValue("target_language")),
			OutputFormat:   r.FormValue("output_format"),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.Accepted(w, submitResponse{
			JobID:             job.ID,
			Status:            job.Status,
			StatusURL:         statusURL(job.ID),
			ChaptersExtracted: len(chapters),
		})
	}
}

func fileTooLarge(w http.ResponseWriter, limit int64) {
	response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
		fmt.Sprintf("File exceeds the %d byte limit", limit), nil)
}

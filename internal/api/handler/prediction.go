package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/internal/api/response"
	"github.com/kiranshivaraju/dogwatch/internal/prediction"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

// ImageField is the multipart form field carrying the upload.
const ImageField = "image"

// multipartOverhead is allowed on top of the image size for boundaries and part headers.
const multipartOverhead = 64 << 10

// Submitter defines the submission capability the handler depends on.
type Submitter interface {
	Submit(ctx context.Context, up prediction.Upload) (*models.Job, error)
}

// StatusGetter defines the lookup capability the handler depends on.
type StatusGetter interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type predictionResponse struct {
	ID     uuid.UUID        `json:"id"`
	Status models.JobStatus `json:"status"`
	Result *bool            `json:"result"`
}

func toResponse(job *models.Job) predictionResponse {
	return predictionResponse{ID: job.ID, Status: job.Status, Result: job.Result}
}

// NewSubmitHandler returns an http.HandlerFunc for POST /image_prediction.
func NewSubmitHandler(svc Submitter, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartOverhead)

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			if tooLarge(err) {
				payloadTooLarge(w, maxUploadBytes)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Expected a multipart/form-data body", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile(ImageField)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Missing image file in form field \"image\"", nil)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read upload", nil)
			return
		}
		if int64(len(data)) > maxUploadBytes {
			payloadTooLarge(w, maxUploadBytes)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = mimetype.Detect(data).String()
		}

		job, err := svc.Submit(r.Context(), prediction.Upload{
			Filename:    header.Filename,
			ContentType: contentType,
			Data:        data,
		})
		if err != nil {
			var typeErr *prediction.InvalidTypeError
			switch {
			case errors.As(err, &typeErr):
				response.Error(w, http.StatusBadRequest, "INVALID_FILE_TYPE", typeErr.Error(), nil)
			case errors.Is(err, prediction.ErrInvalidInput):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Uploaded image is empty", nil)
			case errors.Is(err, prediction.ErrEnqueue):
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
					"The prediction could not be queued, try again later", nil)
			default:
				slog.Error("submit prediction failed", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, toResponse(job))
	}
}

// NewStatusHandler returns an http.HandlerFunc for GET /image_prediction/{id}.
func NewStatusHandler(svc StatusGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			// Never issued, so it cannot exist.
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Prediction not found", nil)
			return
		}

		job, err := svc.GetStatus(r.Context(), id)
		if err != nil {
			if errors.Is(err, prediction.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Prediction not found", nil)
				return
			}
			slog.Error("get prediction failed", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, toResponse(job))
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}

func payloadTooLarge(w http.ResponseWriter, maxUploadBytes int64) {
	response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		"Upload exceeds the maximum allowed size", map[string]int64{"max_bytes": maxUploadBytes})
}

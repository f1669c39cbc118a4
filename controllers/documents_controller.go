package controllers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/dto"
	"github.com/princinho/studyspark/middleware"
	"github.com/princinho/studyspark/models"
	"github.com/princinho/studyspark/pdfx"
	"github.com/princinho/studyspark/storage"
	"github.com/princinho/studyspark/utils"
	"go.uber.org/zap"
)

type pdfPayload struct {
	filename  string
	data      []byte
	mime      string
	sourceURL string
}

// POST /api/pdf/upload (multipart: "pdf" file or "pdfLink")
func UploadPDF(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}

		// Leave room for the multipart envelope around the file.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, env.Validator.MaxSize()+1<<20)

		var form dto.UploadPDFForm
		if err := c.ShouldBind(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		file, fileErr := c.FormFile("pdf")
		hasFile := fileErr == nil
		hasLink := strings.TrimSpace(form.PDFLink) != ""

		switch {
		case !hasFile && !hasLink:
			c.JSON(http.StatusBadRequest, gin.H{"error": "either a PDF file or a PDF link must be provided"})
			return
		case hasFile && hasLink:
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide either a file or a link, not both"})
			return
		}

		var (
			payload pdfPayload
			err     error
		)
		if hasFile {
			payload, err = env.readUpload(file)
		} else {
			payload, err = env.fetchLink(c.Request.Context(), strings.TrimSpace(form.PDFLink))
		}
		if err != nil {
			var bad *badUpload
			if errors.As(err, &bad) {
				c.JSON(http.StatusBadRequest, gin.H{"error": bad.msg})
				return
			}
			utils.RespondError(c, env.Log, err)
			return
		}

		extracted, err := pdfx.Extract(bytes.NewReader(payload.data), int64(len(payload.data)))
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}

		now := env.now().UTC()
		doc := models.Document{
			UserID:    id.UserID,
			Filename:  payload.filename,
			SizeBytes: int64(len(payload.data)),
			SourceURL: payload.sourceURL,
			Summary:   pdfx.Summarize(extracted.Text, extracted.Pages),
			CreatedAt: now,
		}

		if env.Objects != nil {
			doc.ObjectKey = storage.DocumentKey(id.UserID, payload.filename, now)
			doc.URL, err = env.Objects.Put(c.Request.Context(), doc.ObjectKey,
				bytes.NewReader(payload.data), doc.SizeBytes, payload.mime)
			if err != nil {
				utils.RespondError(c, env.Log, err)
				return
			}
		}

		if err := env.Documents.CreateDocument(c.Request.Context(), &doc); err != nil {
			if doc.ObjectKey != "" {
				if delErr := env.Objects.Delete(context.WithoutCancel(c.Request.Context()), doc.ObjectKey); delErr != nil {
					env.Log.Warn("orphaned upload", zap.String("key", doc.ObjectKey), zap.Error(delErr))
				}
			}
			utils.RespondError(c, env.Log, err)
			return
		}

		env.Log.Info("pdf processed",
			zap.String("user_id", id.UserID),
			zap.String("document_id", doc.ID),
			zap.Int("pages", doc.Summary.PageCount),
			zap.Int("words", doc.Summary.WordCount),
		)
		c.JSON(http.StatusCreated, dto.DocumentResponse{
			Success: true,
			Message: "PDF uploaded and processed successfully",
			Data:    doc,
		})
	}
}

type badUpload struct{ msg string }

func (b *badUpload) Error() string { return b.msg }

func (env *Env) readUpload(fh *multipart.FileHeader) (pdfPayload, error) {
	mime, err := env.Validator.ValidateFile(fh)
	if err != nil {
		return pdfPayload{}, &badUpload{msg: err.Error()}
	}
	f, err := fh.Open()
	if err != nil {
		return pdfPayload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, env.Validator.MaxSize()+1))
	if err != nil {
		return pdfPayload{}, err
	}
	return pdfPayload{filename: path.Base(fh.Filename), data: data, mime: mime}, nil
}

func (env *Env) fetchLink(ctx context.Context, link string) (pdfPayload, error) {
	client := env.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	data, err := pdfx.Fetch(ctx, client, link, env.Validator.MaxSize())
	if err != nil {
		return pdfPayload{}, err
	}
	mime, err := env.Validator.ValidateBytes(data)
	if err != nil {
		return pdfPayload{}, &badUpload{msg: err.Error()}
	}
	return pdfPayload{filename: linkFilename(link), data: data, mime: mime, sourceURL: link}, nil
}

// linkFilename takes the last path segment of a link, defaulting to from-url.pdf.
func linkFilename(link string) string {
	name := ""
	if u, err := url.Parse(link); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return "from-url.pdf"
	}
	if !strings.Contains(name, ".") {
		name += ".pdf"
	}
	return name
}

// GET /api/pdf
func ListDocuments(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}
		docs, err := env.Documents.ListDocuments(c.Request.Context(), id.UserID)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(docs), "documents": docs})
	}
}

// GET /api/pdf/:id
func GetDocument(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}
		doc, err := env.Documents.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		if doc.UserID != id.UserID && id.Role != auth.RoleAdmin {
			utils.RespondError(c, env.Log, auth.ErrInsufficientPermission)
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": doc})
	}
}

package dto

import "github.com/princinho/studyspark/models"

// UploadPDFForm is the multipart body of an upload: a "pdf" file or a "pdfLink".
type UploadPDFForm struct {
	PDFLink string `form:"pdfLink" binding:"omitempty,url"`
}

type DocumentResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    models.Document `json:"data"`
}

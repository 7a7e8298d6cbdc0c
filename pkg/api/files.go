package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/httputil"
	"github.com/dataroomhq/dataroom/pkg/resource"
)

// uploadFiles accepts one or more multipart file parts. A single part on a
// single-document section replaces the stored document; multiple parts land
// on document-list sections in one batch.
func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	uploads, err := parseUploads(r)
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}

	resourceType, id, section := vars["resourceType"], vars["id"], vars["section"]
	def, err := s.engine.Definition(resourceType)
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}

	op := sectionOp(r)
	var doc map[string]interface{}
	sec := def.Sections[section]
	if sec != nil && sec.Document != nil {
		if len(uploads) != 1 {
			httputil.WriteError(w, s.logger,
				apierror.BadRequestf("section %q takes exactly one file per upload", section))
			return
		}
		doc, err = s.engine.UploadFile(r.Context(), resourceType, id, section, op, uploads[0], s.actor(r))
	} else {
		doc, err = s.engine.UploadFiles(r.Context(), resourceType, id, section, op, uploads, s.actor(r))
	}
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderDoc(doc))
}

// parseUploads reads every file part of a multipart request.
func parseUploads(r *http.Request) ([]resource.FileUpload, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, apierror.BadRequestf("expected a multipart upload: %v", err)
	}

	var uploads []resource.FileUpload
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apierror.BadRequestf("malformed multipart body: %v", err)
		}
		upload, err := readPart(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		if upload != nil {
			uploads = append(uploads, *upload)
		}
	}
	if len(uploads) == 0 {
		return nil, apierror.BadRequestf("no file parts in upload")
	}
	return uploads, nil
}

func readPart(part *multipart.Part) (*resource.FileUpload, error) {
	if part.FileName() == "" {
		// non-file form fields are ignored
		return nil, nil
	}
	content, err := io.ReadAll(part)
	if err != nil {
		return nil, apierror.BadRequestf("failed to read file %q: %v", part.FileName(), err)
	}
	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &resource.FileUpload{
		Name:        part.FileName(),
		ContentType: contentType,
		Content:     content,
	}, nil
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	download, err := s.engine.DownloadFile(r.Context(),
		vars["resourceType"], vars["id"], vars["section"], vars["fileId"], s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}

	contentType, _ := download.Meta["mimeType"].(string)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fileName, _ := download.Meta["fileName"].(string)

	w.Header().Set("Content-Type", contentType)
	if fileName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(download.Content)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	doc, err := s.engine.DeleteDocument(r.Context(),
		vars["resourceType"], vars["id"], vars["section"], vars["fileId"], s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderDoc(doc))
}

package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/jsonutil"
	"github.com/ucmodeler/modelstore/pkg/model"
)

const maxBodyBytes = 64 << 20

func requester(r *http.Request) model.Lease {
	return model.NewLease(identityFrom(r.Context()).Username, r.Header.Get(HeaderSessionTab))
}

func requireJSON(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errclass.ErrUnsupportedMedia.WithMessage("Content-Type not supported")
	}
	return nil
}

func readObject(r *http.Request) (map[string]any, error) {
	if err := requireJSON(r); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errclass.ErrBadRequest.WithMessagef("read body: %v", err)
	}
	var payload map[string]any
	if err := jsonutil.Decode(data, &payload); err != nil {
		return nil, errclass.ErrBadRequest.WithMessagef("body is not a JSON object: %v", err)
	}
	if payload == nil {
		return nil, errclass.ErrBadRequest.WithMessage("body is not a JSON object")
	}
	return payload, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) error {
	list, err := s.registry.List()
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) error {
	view, err := s.leases.Checkout(r.PathValue("id"), requester(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) error {
	payload, err := readObject(r)
	if err != nil {
		return err
	}
	view, err := s.leases.Create(r.PathValue("id"), payload, requester(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, view)
	return nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	payload, err := readObject(r)
	if err != nil {
		return err
	}
	view, err := s.leases.Update(r.Context(), r.PathValue("id"), payload, requester(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, view)
	return nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	if err := s.leases.Delete(r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// handleRelease clears a lease. The body is the caller's copy of the model;
// its readOnly field must be empty.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) error {
	body, err := readObject(r)
	if err != nil {
		return err
	}
	raw, ok := body[model.FieldReadOnly]
	if !ok {
		return errclass.ErrBadRequest.WithMessage("body has no readOnly field")
	}
	if err := s.leases.Release(r.PathValue("id"), claimedHolder(raw)); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Model Returned"})
	return nil
}

func claimedHolder(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (s *Server) handleReturnAll(w http.ResponseWriter, r *http.Request) error {
	session, _, _ := strings.Cut(r.Header.Get(HeaderSessionTab), model.LeaseSeparator)
	if session == "" {
		return errclass.ErrBadRequest.WithMessagef("%s header must be session/tab", HeaderSessionTab)
	}
	count, err := s.leases.ReleaseAll(identityFrom(r.Context()).Username, session)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("%d model(s) returned!", count),
		"count":   count,
	})
	return nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	data, err := s.transfer.Export(id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": id + model.FileExt}))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	return err
}

type importFile struct {
	Filepath  string `json:"filepath"`
	ModelName string `json:"model_name"`
}

type importMeta struct {
	Original importFile `json:"original"`
	New      importFile `json:"new"`
}

type importResponse struct {
	Model *model.View `json:"model"`
	Meta  importMeta  `json:"meta"`
}

// handleImport reads the uploaded file from the multipart field named after
// the path's filename.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) error {
	filename := r.PathValue("filename")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	file, _, err := r.FormFile(filename)
	if err != nil {
		return errclass.ErrBadRequest.WithMessagef("no upload in form field %q", filename)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return errclass.ErrBadRequest.WithMessagef("read upload: %v", err)
	}
	res, err := s.transfer.Import(raw)
	if err != nil {
		return err
	}

	dir := s.leases.Store().Dir()
	writeJSON(w, http.StatusCreated, importResponse{
		Model: res.View,
		Meta: importMeta{
			Original: importFile{
				Filepath:  filepath.Join(dir, filepath.Base(filename)),
				ModelName: res.OriginalName,
			},
			New: importFile{
				Filepath:  filepath.Join(dir, res.AssignedName+model.FileExt),
				ModelName: res.AssignedName,
			},
		},
	})
	return nil
}

func (s *Server) handleIdealFunctionalities(w http.ResponseWriter, r *http.Request) error {
	rows, err := s.registry.IdealFunctionalities()
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rows)
	return nil
}

func (s *Server) handleIdealFunctionalityMessages(w http.ResponseWriter, r *http.Request) error {
	msgs, err := s.registry.IdealFunctionalityMessages(r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, msgs)
	return nil
}

func (s *Server) handleCompInterfaces(w http.ResponseWriter, r *http.Request) error {
	rows, err := s.registry.CompositeInterfaces()
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rows)
	return nil
}

func (s *Server) handleCompInterfaceMessages(w http.ResponseWriter, r *http.Request) error {
	msgs, err := s.registry.CompositeInterfaceMessages(r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, msgs)
	return nil
}

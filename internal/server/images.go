package server

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/store"
	"golang.org/x/image/bmp"
)

var imageName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

type imageInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type uploadReply struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
	Path    string `json:"path"`
}

// storedName keeps a safe client file name and invents one otherwise.
func storedName(client string) string {
	name := filepath.Base(client)
	if imageName.MatchString(name) && strings.EqualFold(filepath.Ext(name), config.ExtBMP) {
		return name
	}
	return uuid.NewString() + config.ExtBMP
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadSize)
	file, header, err := r.FormFile(config.FormParamFile)
	if err != nil {
		s.fail(w, http.StatusBadRequest, config.ErrImageMissing)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, http.StatusBadRequest, config.ErrInvalidBody)
		return
	}
	if _, err := bmp.DecodeConfig(bytes.NewReader(data)); err != nil {
		s.fail(w, http.StatusBadRequest, config.ErrImageDecode)
		return
	}

	name := storedName(header.Filename)
	path := filepath.Join(s.deps.ImagesDir, name)
	if err := store.WriteFileAtomic(path, data, config.FilePermShared); err != nil {
		s.log.Error(config.ErrImageStore, config.LogKeyFile, path, config.LogKeyError, err)
		s.fail(w, http.StatusInternalServerError, config.ErrImageStore)
		return
	}

	s.log.Info(config.MsgImageStored,
		config.LogKeyFile, name,
		config.LogKeySizeBytes, len(data),
	)
	s.invalidateImage(name)
	s.writeJSON(w, http.StatusOK, uploadReply{Success: true, Name: name, Path: config.ImagesURLRoute + name})
}

func (s *Server) handleListImages(w http.ResponseWriter, _ *http.Request) {
	images := []imageInfo{}

	entries, err := os.ReadDir(s.deps.ImagesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error(config.ErrImageList, config.LogKeyError, err)
		s.fail(w, http.StatusInternalServerError, config.ErrImageList)
		return
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		images = append(images, imageInfo{
			Name: e.Name(),
			Path: config.ImagesURLRoute + e.Name(),
			Size: info.Size(),
		})
	}
	s.writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, config.URLParamName)
	if !imageName.MatchString(name) {
		s.fail(w, http.StatusBadRequest, config.ErrImageName)
		return
	}

	err := os.Remove(filepath.Join(s.deps.ImagesDir, name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.fail(w, http.StatusNotFound, config.ErrImageNotFound)
	case err != nil:
		s.log.Error(config.ErrImageDelete, config.LogKeyFile, name, config.LogKeyError, err)
		s.fail(w, http.StatusInternalServerError, config.ErrImageDelete)
	default:
		s.log.Info(config.MsgImageDeleted, config.LogKeyFile, name)
		s.invalidateImage(name)
		s.writeJSON(w, http.StatusOK, envelope{Success: true})
	}
}

// invalidateImage marks every record showing the named file as changed, so
// a replaced or removed picture is redrawn on the panel.
func (s *Server) invalidateImage(name string) {
	for _, rec := range s.deps.Store.List() {
		if rec.ImagePath != "" && filepath.Base(rec.ImagePath) == name {
			s.deps.Loop.Invalidate(rec.UID)
		}
	}
}

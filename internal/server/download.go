// Copyright 2024 FAL Database Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server implements the public retrieval endpoint: a thin
// read-only dispatcher resolving a combined identifier to file bytes.
package server

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/JostBaron/fal-database/internal/common"
	"github.com/JostBaron/fal-database/internal/config"
	"github.com/JostBaron/fal-database/internal/driver"
	"github.com/JostBaron/fal-database/internal/storage"
)

// DownloadHandler serves GET /download?id=<storage>:<path>.
type DownloadHandler struct {
	db  *storage.DB
	cfg *config.Config

	mu      sync.Mutex
	drivers map[int64]*driver.Driver
}

// NewDownloadHandler creates the handler over the shared database handle.
func NewDownloadHandler(db *storage.DB, cfg *config.Config) *DownloadHandler {
	return &DownloadHandler{
		db:      db,
		cfg:     cfg,
		drivers: make(map[int64]*driver.Driver),
	}
}

// driverFor returns the lazily created driver for a storage partition.
func (h *DownloadHandler) driverFor(storageID int64) *driver.Driver {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.drivers[storageID]
	if !ok {
		d = driver.New(h.db, storageID, driver.WithTempDir(h.cfg.TempDir))
		h.drivers[storageID] = d
	}
	return d
}

func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	combined := r.URL.Query().Get("id")
	storageID, identifier, err := common.ParseCombined(combined)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	sc := h.cfg.Storage(storageID)
	if sc == nil || sc.Kind != config.StorageKindDatabase {
		http.NotFound(w, r)
		return
	}

	d := h.driverFor(storageID)
	content, err := d.GetFileContents(r.Context(), identifier)
	if err != nil {
		if common.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		log.WithError(err).WithField("id", combined).Error("download failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	name := common.BaseName(identifier)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		log.WithError(err).Debug("client aborted download")
	}
}

// Serve runs the download endpoint on the configured listen address until
// the listener fails.
func Serve(db *storage.DB, cfg *config.Config) error {
	mux := http.NewServeMux()
	mux.Handle("/download", NewDownloadHandler(db, cfg))

	log.WithField("addr", cfg.ListenAddr).Info("serving download endpoint")
	return http.ListenAndServe(cfg.ListenAddr, mux)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/catalog"
)

// DefaultMaxUploadBytes caps a create-card request when none is configured.
const DefaultMaxUploadBytes = 10 << 20

// CatalogService is what the catalog routes need from catalog.Service.
type CatalogService interface {
	Cards(ctx context.Context) ([]catalog.Card, error)
	Keywords(ctx context.Context) ([]catalog.Keyword, error)
	AddKeyword(ctx context.Context, name string) (catalog.Keyword, error)
	CreateCard(ctx context.Context, card catalog.NewCard, img *catalog.Image) (catalog.Card, error)
}

type catalogHandlers struct {
	svc            CatalogService
	maxUploadBytes int64
	logger         *zap.Logger
}

func registerCatalogRoutes(r *mux.Router, svc CatalogService, maxUploadBytes int64, logger *zap.Logger) {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	h := &catalogHandlers{svc: svc, maxUploadBytes: maxUploadBytes, logger: logger}
	r.HandleFunc("/cards", h.listCards).Methods(http.MethodGet)
	r.HandleFunc("/card-data", h.cardData).Methods(http.MethodGet)
	r.HandleFunc("/keywords", h.listKeywords).Methods(http.MethodGet)
	r.HandleFunc("/keywords", h.createKeyword).Methods(http.MethodPost)
	r.HandleFunc("/create-card", h.createCard).Methods(http.MethodPost)
}

func (h *catalogHandlers) listCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.svc.Cards(r.Context())
	if err != nil {
		h.logger.Error("fetching cards", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch cards")
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *catalogHandlers) cardData(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.svc.Keywords(r.Context())
	if err != nil {
		h.logger.Error("fetching card data", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch card data")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]catalog.Keyword{"effects": keywords})
}

func (h *catalogHandlers) listKeywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.svc.Keywords(r.Context())
	if err != nil {
		h.logger.Error("fetching keywords", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch keywords")
		return
	}
	writeJSON(w, http.StatusOK, keywords)
}

func (h *catalogHandlers) createKeyword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	kw, err := h.svc.AddKeyword(r.Context(), body.Name)
	switch {
	case errors.Is(err, catalog.ErrKeywordExists):
		writeError(w, http.StatusBadRequest, "Keyword with this name already exists")
	case errors.Is(err, catalog.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("creating keyword", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create keyword")
	default:
		writeJSON(w, http.StatusCreated, kw)
	}
}

// createdCard is the create-card response: the card plus the path of its image.
type createdCard struct {
	catalog.Card
	ImagePath string `json:"imageUrl"`
}

func (h *catalogHandlers) createCard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, catalog.ErrImageRequired.Error())
		return
	}
	defer file.Close()

	nc, err := parseNewCard(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, err := h.svc.CreateCard(r.Context(), nc, &catalog.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	switch {
	case errors.Is(err, catalog.ErrInvalid), errors.Is(err, catalog.ErrKeywordNotFound), errors.Is(err, catalog.ErrImageRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("creating card", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create card")
	default:
		writeJSON(w, http.StatusCreated, createdCard{Card: card, ImagePath: catalog.UploadsPath + card.ImageKey})
	}
}

func parseNewCard(form *multipart.Form) (catalog.NewCard, error) {
	get := func(key string) string {
		if vs := form.Value[key]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	nc := catalog.NewCard{
		Name:       get("name"),
		Type:       get("type"),
		Color:      get("color"),
		Rarity:     get("rarity"),
		EffectName: get("effectName"),
		EffectType: get("effectType"),
		EffectText: get("effectText"),
	}
	var err error
	if nc.Attack, err = optionalInt("attack", get("attack")); err != nil {
		return nc, err
	}
	if nc.Defense, err = optionalInt("defense", get("defense")); err != nil {
		return nc, err
	}
	cost := get("cost")
	if nc.Cost, err = strconv.Atoi(cost); err != nil {
		return nc, fmt.Errorf("%w: cost %q is not an integer", catalog.ErrInvalid, cost)
	}
	if subtype := get("subtype"); subtype != "" {
		nc.Subtype = &subtype
	}

	ids := append(append([]string{}, form.Value["keywordIds"]...), form.Value["keywordIds[]"]...)
	for _, raw := range ids {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nc, fmt.Errorf("%w: keyword id %q is not an integer", catalog.ErrInvalid, part)
			}
			nc.KeywordIDs = append(nc.KeywordIDs, id)
		}
	}
	return nc, nil
}

func optionalInt(field, raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not an integer", catalog.ErrInvalid, field, raw)
	}
	return &v, nil
}

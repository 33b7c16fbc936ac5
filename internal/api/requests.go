// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// maxRequestBody bounds admin API request bodies.
const maxRequestBody = 1 << 20

// syncRequest triggers one replay pass for a registered tag.
type syncRequest struct {
	Tag string `json:"tag" validate:"required"`
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// validationDetails flattens validator errors into field -> rule pairs.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

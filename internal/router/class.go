// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package router classifies intercepted requests and dispatches each
// class to its fetch strategy. The Gateway handler is mounted as the
// HTTP catch-all, so everything the API surface does not claim flows
// through here.
package router

import (
	"net/http"
	"path"
	"strings"
)

// Class is the routing category of an intercepted request.
type Class string

const (
	ClassImage      Class = "image"
	ClassAPI        Class = "api"
	ClassNavigation Class = "navigation"
	ClassStatic     Class = "static"

	// ClassBypass skips every strategy: non-GET requests and requests
	// addressed to origins outside the allow-list go straight to the
	// network.
	ClassBypass Class = "bypass"
)

// imageExtensions are the filename suffixes treated as image requests.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".svg":  {},
	".ico":  {},
	".avif": {},
	".bmp":  {},
}

// Classifier assigns a Class to each request. Classification order is
// fixed: bypass, image, API, navigation, then static.
type Classifier struct {
	apiPrefixes []string
	allowedHost func(host string) bool
}

// NewClassifier builds a classifier. allowedHost may be nil, in which
// case every host is considered in-scope.
func NewClassifier(apiPrefixes []string, allowedHost func(host string) bool) *Classifier {
	return &Classifier{apiPrefixes: apiPrefixes, allowedHost: allowedHost}
}

// Classify determines the routing class of a request.
func (c *Classifier) Classify(r *http.Request) Class {
	if r.Method != http.MethodGet {
		return ClassBypass
	}
	// Absolute-form requests name a foreign origin; anything outside
	// the allow-list is proxied untouched.
	if r.URL.Host != "" && c.allowedHost != nil && !c.allowedHost(r.URL.Host) {
		return ClassBypass
	}
	if isImagePath(r.URL.Path) || r.Header.Get("Sec-Fetch-Dest") == "image" {
		return ClassImage
	}
	for _, prefix := range c.apiPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return ClassAPI
		}
	}
	if isNavigation(r) {
		return ClassNavigation
	}
	return ClassStatic
}

func isImagePath(p string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// File: uri.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// qrtr://<node> URI helpers, ported from qrtr_get_uri_for_node() /
// qrtr_get_node_for_uri() in libqrtr-glib's qrtr-utils.c.

package qrtr

import (
	"fmt"
	"strconv"
	"strings"
)

const uriPrefix = "qrtr://"

// URIForNode builds the "qrtr://<decimal-id>" URI for a node.
func URIForNode(nodeID uint32) string {
	return fmt.Sprintf("%s%d", uriPrefix, nodeID)
}

// NodeForURI parses a "qrtr://<n>" URI, matching the scheme
// case-insensitively and reading a greedy decimal node id. It returns
// false if the scheme doesn't match or no digits follow the prefix.
func NodeForURI(uri string) (uint32, bool) {
	if len(uri) < len(uriPrefix) || !strings.EqualFold(uri[:len(uriPrefix)], uriPrefix) {
		return 0, false
	}
	rest := uri[len(uriPrefix):]

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.ParseUint(rest[:end], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Package main exposes a C ABI over the credential manager so other
// languages can embed it. Build with:
//
//	go build -buildmode=c-shared -o libkeywarden.so ./ffi
//
// Handles returned by the *_create functions are opaque and must be released
// with the matching *_destroy function. Strings placed into out-structs are
// owned by the caller until freed with the matching *_free function.
package main

/*
#include <stdlib.h>
#include <stdint.h>

// Error codes for the C API.
typedef enum {
	KEYWARDEN_OK               = 0,
	KEYWARDEN_OUT_OF_MEMORY    = 1,
	KEYWARDEN_INVALID_ARGUMENT = 2,
	KEYWARDEN_NOT_FOUND        = 3,
	KEYWARDEN_UNKNOWN          = 99
} keywarden_error;

// OAuth configuration for the C API. scope may be NULL.
typedef struct {
	const char *client_id;
	const char *authorization_endpoint;
	const char *token_endpoint;
	const char *redirect_uri;
	const char *scope;
} keywarden_oauth_config;

// Auth flow result for the C API. Free with keywarden_auth_flow_free.
typedef struct {
	char *url;
	char *state;
} keywarden_auth_flow;
*/
import "C"

import (
	"context"
	"runtime/cgo"
	"unsafe"

	"keywarden/internal/oauth"
	"keywarden/internal/refresher"
	"keywarden/internal/storage"
	pkgoauth "keywarden/pkg/oauth"
)

// Allocated once in C memory so it can cross the boundary. Callers must not
// free it.
var libraryVersion = C.CString("0.1.0")

//export keywarden_version
func keywarden_version() *C.char {
	return libraryVersion
}

//export keywarden_storage_memory_create
func keywarden_storage_memory_create() C.uintptr_t {
	return C.uintptr_t(cgo.NewHandle(storage.NewMemoryStorage()))
}

//export keywarden_storage_destroy
func keywarden_storage_destroy(handle C.uintptr_t) {
	if handle == 0 {
		return
	}
	cgo.Handle(handle).Delete()
}

//export keywarden_client_create
func keywarden_client_create(config *C.keywarden_oauth_config, storageHandle C.uintptr_t) C.uintptr_t {
	if config == nil || storageHandle == 0 {
		return 0
	}
	store, ok := cgo.Handle(storageHandle).Value().(storage.Storage)
	if !ok {
		return 0
	}

	cfg := pkgoauth.OAuthConfig{
		ClientID:              C.GoString(config.client_id),
		AuthorizationEndpoint: C.GoString(config.authorization_endpoint),
		TokenEndpoint:         C.GoString(config.token_endpoint),
		RedirectURI:           C.GoString(config.redirect_uri),
	}
	if config.scope != nil {
		cfg.Scope = C.GoString(config.scope)
	}

	return C.uintptr_t(cgo.NewHandle(oauth.NewClient(cfg, store)))
}

//export keywarden_client_destroy
func keywarden_client_destroy(handle C.uintptr_t) {
	if handle == 0 {
		return
	}
	cgo.Handle(handle).Delete()
}

//export keywarden_start_flow
func keywarden_start_flow(clientHandle C.uintptr_t, result *C.keywarden_auth_flow) C.keywarden_error {
	if clientHandle == 0 || result == nil {
		return C.KEYWARDEN_INVALID_ARGUMENT
	}
	client, ok := cgo.Handle(clientHandle).Value().(*oauth.Client)
	if !ok {
		return C.KEYWARDEN_INVALID_ARGUMENT
	}

	flow, err := client.StartAuthFlow(context.Background())
	if err != nil {
		return C.KEYWARDEN_UNKNOWN
	}

	result.url = C.CString(flow.URL)
	result.state = C.CString(flow.State)
	return C.KEYWARDEN_OK
}

//export keywarden_auth_flow_free
func keywarden_auth_flow_free(result *C.keywarden_auth_flow) {
	if result == nil {
		return
	}
	if result.url != nil {
		C.free(unsafe.Pointer(result.url))
		result.url = nil
	}
	if result.state != nil {
		C.free(unsafe.Pointer(result.state))
		result.state = nil
	}
}

//export keywarden_refresher_create
func keywarden_refresher_create(clientHandle C.uintptr_t) C.uintptr_t {
	if clientHandle == 0 {
		return 0
	}
	client, ok := cgo.Handle(clientHandle).Value().(*oauth.Client)
	if !ok {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(refresher.New(client)))
}

//export keywarden_refresher_destroy
func keywarden_refresher_destroy(handle C.uintptr_t) {
	if handle == 0 {
		return
	}
	cgo.Handle(handle).Delete()
}

//export keywarden_refresher_wait
func keywarden_refresher_wait(refresherHandle C.uintptr_t, key *C.char) {
	if refresherHandle == 0 || key == nil {
		return
	}
	r, ok := cgo.Handle(refresherHandle).Value().(*refresher.TokenRefresher)
	if !ok {
		return
	}
	r.WaitForRefresh(context.Background(), C.GoString(key))
}

func main() {}

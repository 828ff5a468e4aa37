package callback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestServer_CapturesCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(0)
	redirectURI, err := srv.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	if !strings.HasSuffix(redirectURI, "/callback") {
		t.Errorf("Redirect URI %q should end in /callback", redirectURI)
	}
	if srv.Port() == 0 {
		t.Error("Port should be resolved after Start")
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?code=auth-code&state=xyz", srv.Port()))
	if err != nil {
		t.Fatalf("GET callback failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Authorization complete") {
		t.Errorf("Body should show the success page, got %q", body)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	result, err := srv.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.Code != "auth-code" {
		t.Errorf("Code = %q", result.Code)
	}
	if result.State != "xyz" {
		t.Errorf("State = %q", result.State)
	}
	if result.IsError() {
		t.Error("Result should not be an error")
	}
}

func TestServer_CapturesDenial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(0)
	if _, err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	url := fmt.Sprintf("http://127.0.0.1:%d/callback?error=access_denied&error_description=user+cancelled&state=xyz", srv.Port())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET callback failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "user cancelled") {
		t.Errorf("Error page should show the description, got %q", body)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	result, err := srv.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !result.IsError() {
		t.Fatal("Result should be an error")
	}
	if result.Error != "access_denied" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestServer_SecondCallbackRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(0)
	if _, err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	url := fmt.Sprintf("http://127.0.0.1:%d/callback?code=first&state=xyz", srv.Port())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("First GET failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?code=second&state=xyz", srv.Port()))
	if err != nil {
		// The server may already be shutting down after the first redirect,
		// which is an acceptable form of rejection.
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("Second callback should be rejected")
	}
}

func TestServer_WaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(0)
	if _, err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	waitCtx, waitCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer waitCancel()

	_, err := srv.Wait(waitCtx)
	if err == nil {
		t.Fatal("Wait should fail when the context expires before the redirect")
	}
}

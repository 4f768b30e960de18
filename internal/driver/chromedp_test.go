package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

const fixturePage = `<!doctype html>
<html><body>
<h1>Middagsbibliotek</h1>
<label for="email">E-post</label><input id="email" type="email">
<label>Passord <input id="pw" type="password"></label>
<button onclick="document.getElementById('out').textContent = document.getElementById('email').value">Logg inn</button>
<p id="out"></p>
<div data-testid="meal-card"><h3>Taco</h3><button aria-label="Legg til i favoritter" onclick="toggle(this)">+</button></div>
<div data-testid="meal-card"><h3>Pizza</h3><button aria-label="Legg til i favoritter" onclick="toggle(this)">+</button></div>
<select aria-label="Sorter"><option value="name">Navn</option><option value="favorites">Favoritter</option></select>
<button onclick="openModal()">Åpne</button>
<button style="display:none">Skjult</button>
<div id="modal" style="display:none">
  <div data-testid="modal-backdrop" style="position:fixed;inset:0;background:rgba(0,0,0,.5)" onclick="closeModal()"></div>
  <div data-testid="modal-content" style="position:relative;width:200px;height:100px;margin:100px auto;background:#fff">Innhold</div>
</div>
<script>
function toggle(b) {
  const add = 'Legg til i favoritter';
  b.setAttribute('aria-label', b.getAttribute('aria-label') === add ? 'Fjern fra favoritter' : add);
}
function openModal() { document.getElementById('modal').style.display = 'block'; }
function closeModal() { document.getElementById('modal').style.display = 'none'; }
document.addEventListener('keydown', e => { if (e.key === 'Escape') closeModal(); });
document.querySelector('select').addEventListener('change', e => {
  document.getElementById('out').textContent = 'sorted:' + e.target.value;
});
</script>
</body></html>`

// requireChrome skips the test when no Chrome binary is on PATH.
func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("chrome not installed")
}

func newFixture(t *testing.T) (*Chromedp, string) {
	t.Helper()
	requireChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, fixturePage)
	}))
	t.Cleanup(srv.Close)

	d, err := NewChromedp(context.Background(), Options{
		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	})
	if err != nil {
		t.Fatalf("failed to start chromedp: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := d.Navigate(context.Background(), srv.URL, 10*time.Second); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	return d, srv.URL
}

func textOf(t *testing.T, d *Chromedp, sel string) string {
	t.Helper()
	var s string
	if err := chromedp.Run(d.ctx, chromedp.Text(sel, &s, chromedp.ByQuery)); err != nil {
		t.Fatalf("read text %s: %v", sel, err)
	}
	return s
}

func TestChromedp_FillAndClickByLabelAndRole(t *testing.T) {
	d, _ := newFixture(t)
	ctx := context.Background()

	email, err := d.Locate(ctx, ByLabel("E-post"), 2*time.Second)
	if err != nil {
		t.Fatalf("locate email: %v", err)
	}
	if err := d.Fill(ctx, email, "test@test.com", 2*time.Second); err != nil {
		t.Fatalf("fill email: %v", err)
	}

	if _, err := d.Locate(ctx, ByLabel("Passord"), 2*time.Second); err != nil {
		t.Fatalf("wrapping label should resolve: %v", err)
	}

	button, err := d.Locate(ctx, ByRole("button", "Logg inn"), 2*time.Second)
	if err != nil {
		t.Fatalf("locate button: %v", err)
	}
	if err := d.Click(ctx, button, ClickOptions{}, 2*time.Second); err != nil {
		t.Fatalf("click: %v", err)
	}

	if got := textOf(t, d, "#out"); got != "test@test.com" {
		t.Errorf("expected typed email echoed, got %q", got)
	}
}

func TestChromedp_ScopedToggle(t *testing.T) {
	d, _ := newFixture(t)
	ctx := context.Background()

	secondCard := ByTestID("meal-card").At(1)
	add, err := d.Locate(ctx, ByRole("button", "Legg til i favoritter").In(secondCard), 2*time.Second)
	if err != nil {
		t.Fatalf("locate add: %v", err)
	}
	if err := d.Click(ctx, add, ClickOptions{}, 2*time.Second); err != nil {
		t.Fatalf("click add: %v", err)
	}

	if _, err := d.Locate(ctx, ByRole("button", "Fjern fra favoritter").In(secondCard), 2*time.Second); err != nil {
		t.Fatalf("toggled button should be found in the second card: %v", err)
	}
	if _, err := d.Locate(ctx, ByRole("button", "Fjern fra favoritter").In(ByTestID("meal-card")), 300*time.Millisecond); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("first card should be untouched, got %v", err)
	}
}

func TestChromedp_RepeatedLocateReusesHandle(t *testing.T) {
	d, _ := newFixture(t)
	ctx := context.Background()

	var first Element
	for i := 0; i < 5; i++ {
		el, err := d.Locate(ctx, ByRole("button", "Logg inn"), 2*time.Second)
		if err != nil {
			t.Fatalf("locate %d: %v", i, err)
		}
		if first == nil {
			first = el
		}
	}
	if _, err := d.Locate(ctx, ByLabel("E-post"), 2*time.Second); err != nil {
		t.Fatal(err)
	}

	var tagged int
	if err := chromedp.Run(d.ctx, chromedp.Evaluate(`document.querySelectorAll('[`+handleAttr+`]').length`, &tagged)); err != nil {
		t.Fatal(err)
	}
	if tagged != 2 {
		t.Errorf("expected one tag per distinct locator, got %d", tagged)
	}
	if visible, err := d.IsVisible(ctx, first); err != nil || !visible {
		t.Errorf("earlier handle should stay valid: %v %v", visible, err)
	}
}

func TestNewChromedp_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChromedp(ctx, Options{Headless: true})
	if !errors.Is(err, ErrDriverUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected DriverUnavailable wrapping context.Canceled, got %v", err)
	}
}

func TestChromedp_HiddenRoleNotFound(t *testing.T) {
	d, _ := newFixture(t)

	_, err := d.Locate(context.Background(), ByRole("button", "Skjult"), 300*time.Millisecond)
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("expected ElementNotFound for hidden button, got %v", err)
	}
}

func TestChromedp_ModalCloseByEscapeAndBackdrop(t *testing.T) {
	d, _ := newFixture(t)
	ctx := context.Background()

	open := func() Element {
		btn, err := d.Locate(ctx, ByRole("button", "Åpne"), 2*time.Second)
		if err != nil {
			t.Fatalf("locate open: %v", err)
		}
		if err := d.Click(ctx, btn, ClickOptions{}, 2*time.Second); err != nil {
			t.Fatalf("click open: %v", err)
		}
		content, err := d.Locate(ctx, ByTestID("modal-content"), 2*time.Second)
		if err != nil {
			t.Fatalf("locate content: %v", err)
		}
		if visible, err := d.IsVisible(ctx, content); err != nil || !visible {
			t.Fatalf("modal should be visible after opening (err=%v)", err)
		}
		return content
	}

	content := open()
	if err := d.Press(ctx, nil, "Escape", 2*time.Second); err != nil {
		t.Fatalf("press escape: %v", err)
	}
	if visible, _ := d.IsVisible(ctx, content); visible {
		t.Error("modal should be hidden after Escape")
	}

	content = open()
	backdrop, err := d.Locate(ctx, ByTestID("modal-backdrop"), 2*time.Second)
	if err != nil {
		t.Fatalf("locate backdrop: %v", err)
	}
	if err := d.Click(ctx, backdrop, ClickOptions{Offset: &Point{X: 10, Y: 10}, Force: true}, 2*time.Second); err != nil {
		t.Fatalf("click backdrop: %v", err)
	}
	if visible, _ := d.IsVisible(ctx, content); visible {
		t.Error("modal should be hidden after backdrop click")
	}
}

func TestChromedp_SelectOption(t *testing.T) {
	d, _ := newFixture(t)
	ctx := context.Background()

	combo, err := d.Locate(ctx, ByRole("combobox", "Sorter"), 2*time.Second)
	if err != nil {
		t.Fatalf("locate combobox: %v", err)
	}
	if err := d.Select(ctx, combo, "favorites", 2*time.Second); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := textOf(t, d, "#out"); got != "sorted:favorites" {
		t.Errorf("change event should fire, got %q", got)
	}

	err = d.Select(ctx, combo, "rating", 500*time.Millisecond)
	if !errors.Is(err, ErrNotInteractable) {
		t.Errorf("expected NotInteractable for missing option, got %v", err)
	}
}

func TestChromedp_ClickHiddenIsNotInteractable(t *testing.T) {
	d, _ := newFixture(t)
	ctx := context.Background()

	content, err := d.Locate(ctx, ByTestID("modal-content"), 2*time.Second)
	if err != nil {
		t.Fatalf("test-id lookup includes hidden elements: %v", err)
	}
	err = d.Click(ctx, content, ClickOptions{}, 300*time.Millisecond)
	if !errors.Is(err, ErrNotInteractable) {
		t.Fatalf("expected NotInteractable, got %v", err)
	}
}

func TestChromedp_ScreenshotIsPNG(t *testing.T) {
	d, _ := newFixture(t)

	path := filepath.Join(t.TempDir(), "nested", "shot.png")
	if err := d.Screenshot(context.Background(), path, 5*time.Second); err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read screenshot: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("screenshot should be PNG encoded")
	}
}

func TestChromedp_URLAndDiagnose(t *testing.T) {
	d, base := newFixture(t)
	ctx := context.Background()

	u, err := d.URL(ctx)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if u != base+"/" {
		t.Errorf("expected %s/, got %s", base, u)
	}

	diag, err := d.Diagnose(ctx)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if diag.URL != u {
		t.Errorf("diagnostics URL mismatch: %s", diag.URL)
	}
	if err := d.Reset(ctx); err != nil {
		t.Errorf("reset: %v", err)
	}
}

func TestChromedp_NavigateUnreachable(t *testing.T) {
	d, _ := newFixture(t)

	err := d.Navigate(context.Background(), "http://127.0.0.1:1/", 2*time.Second)
	if !errors.Is(err, ErrNavigationTimeout) {
		t.Fatalf("expected NavigationTimeout, got %v", err)
	}
}

package widget

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadwidget/internal/entities"
)

var mountCall = regexp.MustCompile(`window\.LeadWidget\.mount\((\{.*\}), (\{.*\}), (\{.*\})\);`)

func TestRenderTenant_EmbedsConfigAndEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.WelcomeMessage = `</script><script>alert("x")</script>`
	cfg.AI = entities.AISettings{Enabled: true, SystemPrompt: "secreto"}

	src, err := RenderTenant(cfg, Endpoints{Chat: "https://api.example.com/api/chat", Analytics: "https://api.example.com/api/analytics"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(src, "/* LeadWidget */"))
	assert.Contains(t, src, "root.LeadWidget = {")
	assert.NotContains(t, src, "</script>")
	assert.NotContains(t, src, "secreto", "AI settings stay on the server")

	m := mountCall.FindStringSubmatch(src)
	require.Len(t, m, 4)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(m[1]), &got))
	assert.Equal(t, "acme", got["widgetId"])
	assert.Equal(t, cfg.WelcomeMessage, got["welcomeMessage"])

	var ep Endpoints
	require.NoError(t, json.Unmarshal([]byte(m[2]), &ep))
	assert.Equal(t, "https://api.example.com/api/chat", ep.Chat)

	var timings Timings
	require.NoError(t, json.Unmarshal([]byte(m[3]), &timings))
	assert.Equal(t, DefaultTimings(), timings)
}

func TestRenderTenant_IsPure(t *testing.T) {
	ep := Endpoints{Chat: "c", Analytics: "a"}
	a, err := RenderTenant(testConfig(), ep)
	require.NoError(t, err)
	b, err := RenderTenant(testConfig(), ep)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRenderSuspended_OnlyWarns(t *testing.T) {
	src := RenderSuspended("acme")
	assert.Equal(t, 1, strings.Count(src, "console.warn("))
	assert.Equal(t, 1, strings.Count(src, ";"), "a single statement")
	assert.NotContains(t, src, "document.")
	assert.NotContains(t, src, "LeadWidget.mount")

	quoted := RenderSuspended(`x"); alert(1); ("`)
	assert.Contains(t, quoted, `x\"); alert(1); (\"`)
}

func TestRenderNoop_OnlyLogsError(t *testing.T) {
	src := RenderNoop("missing")
	assert.Equal(t, 1, strings.Count(src, "console.error("))
	assert.NotContains(t, src, "document.")
	assert.Contains(t, src, "missing")
}

func TestRenderLoader(t *testing.T) {
	src, err := RenderLoader("https://cdn.example.com")
	require.NoError(t, err)
	assert.Contains(t, src, `var base = "https://cdn.example.com" ||`)
	assert.Contains(t, src, "data-widget-id")
	assert.Contains(t, src, "/api/widget/")

	src, err = RenderLoader("")
	require.NoError(t, err)
	assert.Contains(t, src, `var base = "" ||`)
}

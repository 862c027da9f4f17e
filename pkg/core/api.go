package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type pluginInfo struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Capabilities []Capability  `json:"capabilities,omitempty"`
	Status       ServiceStatus `json:"status,omitempty"`
	Config       any           `json:"config,omitempty"`
}

func (m *ModuleManager) registerCoreRoutes() {
	m.mux.HandleFunc("/api/plugins", m.handlePlugins)
	m.mux.HandleFunc("/api/plugins/", m.handlePlugin)
	m.mux.Handle("/metrics", promhttp.Handler())
}

func (m *ModuleManager) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		m.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	includeConfig := strings.EqualFold(r.URL.Query().Get("include_config"), "true")
	plugins := m.ListPlugins()
	out := make([]pluginInfo, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, buildPluginInfo(p, includeConfig))
	}
	m.writeJSON(w, http.StatusOK, out)
}

func (m *ModuleManager) handlePlugin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		m.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/plugins/"), "/")
	if name == "" {
		m.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "plugin name required"})
		return
	}
	plug, err := m.GetPlugin(name)
	if err != nil {
		m.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	m.writeJSON(w, http.StatusOK, buildPluginInfo(plug, true))
}

func buildPluginInfo(plug Plugin, includeConfig bool) pluginInfo {
	info := pluginInfo{
		Name:         plug.Name(),
		Description:  plug.Description(),
		Capabilities: plug.Capabilities(),
		Status:       plug.Status(),
	}
	if includeConfig {
		if cfg, ok := plug.(ConfigProvider); ok {
			info.Config = cfg.Config()
		}
	}
	return info
}

func (m *ModuleManager) startHTTPServer() {
	m.serverOnce.Do(func() {
		addr := m.httpAddr()
		if addr == "" {
			return
		}
		m.server = &http.Server{
			Addr:    addr,
			Handler: m.mux,
		}
		m.logger.Info("HTTP server starting", "addr", addr)
		go func() {
			if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				m.logger.Error("HTTP server failed", "error", err)
			}
		}()
	})
}

func (m *ModuleManager) httpAddr() string {
	coreSection, ok := m.GetConfig()["core"]
	if !ok {
		return ""
	}
	if v, ok := coreSection["http_addr"]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

// writeJSON encodes v and masks the body with the agent-wide engine, so a
// plugin config that forgot to wrap a value in Secret still does not leak it.
func (m *ModuleManager) writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	body := buf.String()
	if masker := m.Masker(); masker != nil {
		body = masker.Mask(body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

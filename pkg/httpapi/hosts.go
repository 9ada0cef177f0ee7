package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/models"
	"github.com/commissaire/commissaire/pkg/queue"
)

func (s *Server) handleListHosts(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.store.GetDir(models.HostsDir)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Msg("listing hosts failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	hosts := make([]*models.Host, 0, len(entries))
	for _, entry := range entries {
		if entry.Value == nil {
			continue
		}
		host, err := models.HostFromJSON(entry.Value)
		if err != nil {
			continue
		}
		hosts = append(hosts, host)
	}
	if len(hosts) == 0 {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, models.Hosts{Hosts: hosts})
}

func (s *Server) handleGetHost(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	data, err := s.store.Get(models.HostKey(address))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type hostCreateRequest struct {
	SSHPrivKey string `json:"ssh_priv_key"`
	Cluster    string `json:"cluster"`
}

func (s *Server) handlePutHost(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	if _, err := s.store.Get(models.HostKey(address)); err == nil {
		writeEmpty(w, http.StatusConflict)
		return
	} else if !errors.Is(err, kv.ErrNotFound) {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	var body hostCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SSHPrivKey == "" {
		writeEmpty(w, http.StatusBadRequest)
		return
	}

	var cluster *models.Cluster
	if body.Cluster != "" {
		c, err := s.fetchCluster(body.Cluster)
		if err != nil {
			writeEmpty(w, http.StatusConflict)
			return
		}
		cluster = c
	}

	host := models.NewHost(address)
	if err := s.persistHost(host); err != nil {
		s.logger.Error().Err(err).Str("host", address).Msg("persisting new host failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	if err := s.queue.Put(context.Background(), queue.Item{Host: host, SSHPrivKey: body.SSHPrivKey}); err != nil {
		s.logger.Error().Err(err).Str("host", address).Msg("enqueuing investigation failed")
	}

	if cluster != nil {
		if _, ok := cluster.HostsetSet()[address]; !ok {
			cluster.Hostset = append(cluster.Hostset, address)
		}
		if err := s.persistCluster(body.Cluster, cluster); err != nil {
			s.logger.Error().Err(err).Str("cluster", body.Cluster).Msg("adding new host to cluster failed")
		}
	}

	secure, err := host.Secure()
	if err != nil {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(secure)
}

func (s *Server) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	if err := s.store.Delete(models.HostKey(address)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	s.scrubHostFromClusters(address)
	writeEmpty(w, http.StatusGone)
}

// scrubHostFromClusters best-effort removes address from every cluster's
// hostset; KV failures are logged and swallowed, matching the spec's
// treatment of post-delete cleanup.
func (s *Server) scrubHostFromClusters(address string) {
	entries, err := s.store.GetDir(models.ClustersDir)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("listing clusters during host scrub failed")
		}
		return
	}

	for _, entry := range entries {
		if entry.Value == nil {
			continue
		}
		cluster, err := models.ClusterFromJSON(entry.Value)
		if err != nil {
			continue
		}
		if _, ok := cluster.HostsetSet()[address]; !ok {
			continue
		}
		cluster.Hostset = removeFromSet(cluster.Hostset, address)
		name := entry.Key[len(models.ClustersDir):]
		if err := s.persistCluster(name, cluster); err != nil {
			s.logger.Warn().Err(err).Str("cluster", name).Msg("scrubbing host from cluster failed")
		}
	}
}

func (s *Server) persistHost(host *models.Host) error {
	data, err := host.Secure()
	if err != nil {
		return err
	}
	return s.store.Set(models.HostKey(host.Address), data)
}

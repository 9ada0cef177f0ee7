package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/models"
)

func (s *Server) handleListClusters(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.store.GetDir(models.ClustersDir)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Msg("listing clusters failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Value != nil {
			names = append(names, strings.TrimPrefix(entry.Key, models.ClustersDir))
		}
	}
	if len(names) == 0 {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, models.Clusters{Clusters: names})
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	cluster, err := s.fetchCluster(name)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Str("cluster", name).Msg("fetching cluster failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	counts, err := s.hostCounts(cluster)
	if err != nil {
		s.logger.Error().Err(err).Str("cluster", name).Msg("computing host counts failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	body, err := cluster.WithHosts(counts)
	if err != nil {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handlePutCluster(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	_, err := s.fetchCluster(name)
	if err == nil {
		writeEmpty(w, http.StatusCreated)
		return
	}
	if !errors.Is(err, kv.ErrNotFound) {
		s.logger.Error().Err(err).Str("cluster", name).Msg("fetching cluster failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	cluster := models.NewCluster()
	if err := s.persistCluster(name, cluster); err != nil {
		s.logger.Error().Err(err).Str("cluster", name).Msg("creating cluster failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeEmpty(w, http.StatusCreated)
}

func (s *Server) handleDeleteCluster(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.store.Delete(models.ClusterKey(name)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Str("cluster", name).Msg("deleting cluster failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeEmpty(w, http.StatusGone)
}

func (s *Server) handleGetClusterHosts(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	cluster, err := s.fetchCluster(name)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cluster.Hostset)
}

type hostsetCASRequest struct {
	Old []string `json:"old"`
	New []string `json:"new"`
}

func (s *Server) handlePutClusterHosts(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body hostsetCASRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Old == nil || body.New == nil {
		writeEmpty(w, http.StatusBadRequest)
		return
	}

	cluster, err := s.fetchCluster(name)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	if !sameSet(body.Old, cluster.Hostset) {
		writeEmpty(w, http.StatusConflict)
		return
	}

	cluster.Hostset = dedupeSet(body.New)
	if err := s.persistCluster(name, cluster); err != nil {
		s.logger.Error().Err(err).Str("cluster", name).Msg("persisting hostset failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cluster.Hostset)
}

func (s *Server) handleGetClusterHost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cluster, err := s.fetchCluster(vars["name"])
	if err != nil {
		writeEmpty(w, http.StatusNotFound)
		return
	}
	if _, ok := cluster.HostsetSet()[vars["address"]]; !ok {
		writeEmpty(w, http.StatusNotFound)
		return
	}
	writeEmpty(w, http.StatusOK)
}

func (s *Server) handlePutClusterHost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, address := vars["name"], vars["address"]

	cluster, err := s.fetchCluster(name)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	if _, ok := cluster.HostsetSet()[address]; !ok {
		cluster.Hostset = append(cluster.Hostset, address)
		if err := s.persistCluster(name, cluster); err != nil {
			s.logger.Error().Err(err).Str("cluster", name).Msg("adding host to cluster failed")
			writeEmpty(w, http.StatusInternalServerError)
			return
		}
	}
	writeEmpty(w, http.StatusOK)
}

func (s *Server) handleDeleteClusterHost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, address := vars["name"], vars["address"]

	cluster, err := s.fetchCluster(name)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNotFound)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	cluster.Hostset = removeFromSet(cluster.Hostset, address)
	if err := s.persistCluster(name, cluster); err != nil {
		s.logger.Error().Err(err).Str("cluster", name).Msg("removing host from cluster failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeEmpty(w, http.StatusOK)
}

func (s *Server) handleGetClusterRestart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := s.fetchCluster(name); err != nil {
		writeEmpty(w, http.StatusNotFound)
		return
	}

	data, err := s.store.Get(models.ClusterRestartKey(name))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNoContent)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePutClusterRestart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := s.fetchCluster(name); err != nil {
		writeEmpty(w, http.StatusNotFound)
		return
	}

	record, err := s.execPool.SpawnRestart(name)
	if err != nil {
		s.logger.Error().Err(err).Str("cluster", name).Msg("spawning restart failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetClusterUpgrade(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := s.fetchCluster(name); err != nil {
		writeEmpty(w, http.StatusNotFound)
		return
	}

	data, err := s.store.Get(models.ClusterUpgradeKey(name))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeEmpty(w, http.StatusNoContent)
			return
		}
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type upgradeRequest struct {
	UpgradeTo string `json:"upgrade_to"`
}

func (s *Server) handlePutClusterUpgrade(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := s.fetchCluster(name); err != nil {
		writeEmpty(w, http.StatusNotFound)
		return
	}

	var body upgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UpgradeTo == "" {
		writeEmpty(w, http.StatusBadRequest)
		return
	}

	record, err := s.execPool.SpawnUpgrade(name, body.UpgradeTo)
	if err != nil {
		s.logger.Error().Err(err).Str("cluster", name).Msg("spawning upgrade failed")
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) fetchCluster(name string) (*models.Cluster, error) {
	data, err := s.store.Get(models.ClusterKey(name))
	if err != nil {
		return nil, err
	}
	return models.ClusterFromJSON(data)
}

func (s *Server) persistCluster(name string, cluster *models.Cluster) error {
	data, err := cluster.Secure()
	if err != nil {
		return err
	}
	return s.store.Set(models.ClusterKey(name), data)
}

// hostCounts computes the derived availability triplet for cluster by
// reading every host in its hostset.
func (s *Server) hostCounts(cluster *models.Cluster) (models.HostCount, error) {
	hostset := cluster.HostsetSet()
	counts := models.HostCount{}
	for address := range hostset {
		data, err := s.store.Get(models.HostKey(address))
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return counts, err
		}
		host, err := models.HostFromJSON(data)
		if err != nil {
			continue
		}
		counts.Total++
		if host.Status == models.HostActive {
			counts.Available++
		} else {
			counts.Unavailable++
		}
	}
	return counts, nil
}

// sameSet compares a and b as sets, not sequences, so a duplicate in
// either slice (e.g. a client-supplied "old" hostset) never causes a
// spurious mismatch against a de-duplicated stored hostset.
func sameSet(a, b []string) bool {
	da, db := dedupeSet(a), dedupeSet(b)
	if len(da) != len(db) {
		return false
	}
	set := make(map[string]struct{}, len(da))
	for _, v := range da {
		set[v] = struct{}{}
	}
	for _, v := range db {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

func dedupeSet(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func removeFromSet(addrs []string, target string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == target {
			continue
		}
		out = append(out, a)
	}
	return out
}

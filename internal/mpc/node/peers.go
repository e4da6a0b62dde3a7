package node

import (
	"sort"
	"sync"
	"time"
)

// PeerStatus 对端状态
type PeerStatus string

const (
	PeerStatusUnknown PeerStatus = "unknown"
	PeerStatusActive  PeerStatus = "active"
	PeerStatusFaulty  PeerStatus = "faulty"
)

// Peer 对端节点信息
type Peer struct {
	ParticipantID uint8
	Status        PeerStatus
	Latency       time.Duration
	LastSeen      *time.Time
}

// PeerRegistry 对端注册表，记录探活结果与延迟
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[uint8]*Peer
}

// NewPeerRegistry 用给定对端列表初始化注册表
func NewPeerRegistry(ids []uint8) *PeerRegistry {
	peers := make(map[uint8]*Peer, len(ids))
	for _, id := range ids {
		peers[id] = &Peer{ParticipantID: id, Status: PeerStatusUnknown}
	}
	return &PeerRegistry{peers: peers}
}

// MarkAlive 记录一次成功探活
func (r *PeerRegistry) MarkAlive(id uint8, latency time.Duration) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[id]
	if !ok {
		peer = &Peer{ParticipantID: id}
		r.peers[id] = peer
	}
	peer.Status = PeerStatusActive
	peer.Latency = latency
	peer.LastSeen = &now
}

// MarkFaulty 记录探活失败
func (r *PeerRegistry) MarkFaulty(id uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if peer, ok := r.peers[id]; ok {
		peer.Status = PeerStatusFaulty
	}
}

// Get 查询对端信息
func (r *PeerRegistry) Get(id uint8) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *peer, true
}

// List 返回全部对端，按参与者标识排序
func (r *PeerRegistry) List() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, *p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ParticipantID < peers[j].ParticipantID })
	return peers
}

// Candidates 返回优先用于组 quorum 的对端：活跃优先，延迟小者在前
func (r *PeerRegistry) Candidates() []uint8 {
	peers := r.List()
	sort.SliceStable(peers, func(i, j int) bool {
		pi, pj := peers[i], peers[j]
		if (pi.Status == PeerStatusActive) != (pj.Status == PeerStatusActive) {
			return pi.Status == PeerStatusActive
		}
		return pi.Latency < pj.Latency
	})
	ids := make([]uint8, 0, len(peers))
	for _, p := range peers {
		if p.Status == PeerStatusFaulty {
			continue
		}
		ids = append(ids, p.ParticipantID)
	}
	return ids
}

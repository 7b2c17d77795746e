// Package domain 参赛团队：注册、角色与 API key 鉴权
package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/pkg/idgen"
)

var (
	// ErrTeamNameTaken 团队名已被占用
	ErrTeamNameTaken = errors.New("team name already taken")
	// ErrInvalidRole 角色不在枚举内
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidAPIKey API key 无效
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTeamNotFound 团队不存在
	ErrTeamNotFound = errors.New("team not found")
)

// 闭合的角色枚举，每个角色有独立的约束与费率配置
const (
	RoleMarketMaker   = "market_maker"
	RoleHedgeFund     = "hedge_fund"
	RoleArbitrageDesk = "arbitrage_desk"
	RoleRetail        = "retail"
)

// ValidRole 校验角色名
func ValidRole(role string) bool {
	switch role {
	case RoleMarketMaker, RoleHedgeFund, RoleArbitrageDesk, RoleRetail:
		return true
	}
	return false
}

// Team 参赛团队
type Team struct {
	TeamID    string    `json:"team_id"`
	Name      string    `json:"team_name"`
	Role      string    `json:"role"`
	APIKey    string    `json:"api_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry 团队注册表，内存态
type Registry struct {
	mu     sync.RWMutex
	teams  map[string]*Team // teamID -> team
	byName map[string]string
	byKey  map[string]string
}

// NewRegistry 创建团队注册表
func NewRegistry() *Registry {
	return &Registry{
		teams:  make(map[string]*Team),
		byName: make(map[string]string),
		byKey:  make(map[string]string),
	}
}

// Register 注册团队，团队名不区分大小写唯一
func (r *Registry) Register(name, role string) (*Team, error) {
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nameKey := strings.ToLower(strings.TrimSpace(name))
	if _, taken := r.byName[nameKey]; taken {
		return nil, ErrTeamNameTaken
	}

	team := &Team{
		TeamID:    fmt.Sprintf("TEAM-%d", idgen.GenID()),
		Name:      strings.TrimSpace(name),
		Role:      role,
		APIKey:    "ek_" + idgen.GenShortID(32),
		CreatedAt: time.Now(),
	}
	r.teams[team.TeamID] = team
	r.byName[nameKey] = team.TeamID
	r.byKey[team.APIKey] = team.TeamID
	return team, nil
}

// AuthenticateKey 按 API key 鉴权，返回团队与角色
func (r *Registry) AuthenticateKey(apiKey string) (string, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	teamID, ok := r.byKey[apiKey]
	if !ok {
		return "", "", ErrInvalidAPIKey
	}
	team := r.teams[teamID]
	return team.TeamID, team.Role, nil
}

// Get 按团队 ID 查询
func (r *Registry) Get(teamID string) (*Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.teams[teamID]
	return t, ok
}

// RoleOf 团队角色，未知团队返回空串
func (r *Registry) RoleOf(teamID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.teams[teamID]; ok {
		return t.Role
	}
	return ""
}

package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dropminer/internal/datastore/redis_store"
	"dropminer/internal/interfaces"
	"dropminer/internal/models"
	"dropminer/internal/pkg/caching"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/do"
)

// ServiceCampaign is the authoritative in-memory store for campaigns, drop
// progress, rewards and the scan mode. Snapshots are swapped atomically; the
// writer mutex serializes read-modify-write cycles so concurrent workflows
// cannot lose updates.
type ServiceCampaign struct {
	container *do.Injector
	api       interfaces.TwitchAPI
	pubsub    interfaces.PubSub
	settings  *ServiceSettings
	redisDB   redis.UniversalClient
	cache     caching.Cache
	userID    string

	mu        sync.Mutex
	campaigns atomic.Pointer[map[string]models.Campaign]
	progress  atomic.Pointer[[]models.Drop]
	rewards   atomic.Pointer[[]models.Reward]
	mode      atomic.Int32
}

func NewServiceCampaign(container *do.Injector) (*ServiceCampaign, error) {
	api, err := do.Invoke[interfaces.TwitchAPI](container)
	if err != nil {
		return nil, err
	}

	pubsub, err := do.Invoke[interfaces.PubSub](container)
	if err != nil {
		return nil, err
	}

	settings, err := do.Invoke[*ServiceSettings](container)
	if err != nil {
		return nil, err
	}

	redisDB, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	vs, err := do.InvokeNamed[map[string]string](container, "envs")
	if err != nil {
		return nil, err
	}

	service := &ServiceCampaign{
		container: container,
		api:       api,
		pubsub:    pubsub,
		settings:  settings,
		redisDB:   redisDB,
		cache:     cache,
		userID:    vs["TWITCH_USER_ID"],
	}
	empty := map[string]models.Campaign{}
	service.campaigns.Store(&empty)
	service.progress.Store(&[]models.Drop{})
	service.rewards.Store(&[]models.Reward{})
	return service, nil
}

func (service *ServiceCampaign) Mode() models.ScanMode {
	return models.ScanMode(service.mode.Load())
}

func (service *ServiceCampaign) SetMode(m models.ScanMode) {
	service.mode.Store(int32(m))
}

func (service *ServiceCampaign) Campaigns() map[string]models.Campaign {
	return *service.campaigns.Load()
}

func (service *ServiceCampaign) Campaign(id string) (models.Campaign, bool) {
	c, ok := (*service.campaigns.Load())[id]
	return c, ok
}

func (service *ServiceCampaign) Progress() []models.Drop {
	return *service.progress.Load()
}

func (service *ServiceCampaign) Rewards() []models.Reward {
	return *service.rewards.Load()
}

// WarmLoad restores the reward mirror so the 30-day suppression survives
// restarts.
func (service *ServiceCampaign) WarmLoad(ctx context.Context) error {
	stored, err := redis_store.GetRewards(ctx, service.redisDB, service.userID)
	if err != nil {
		return err
	}
	kept := models.FilterRewards(stored, time.Now())
	service.rewards.Store(&kept)
	return nil
}

// UpdateCampaigns refreshes the campaign map from the dashboard listing.
// Exclusions are dropped first, connected campaigns for new games enter the
// priority list, and in priority-only mode everything else is skipped. The
// map is replaced atomically; detail-only fields of known campaigns survive.
func (service *ServiceCampaign) UpdateCampaigns(ctx context.Context) error {
	listing, err := service.api.DropsDashboard(ctx)
	if err != nil {
		return err
	}

	service.mu.Lock()
	defer service.mu.Unlock()

	settings := service.settings.Get()
	mode := service.Mode()
	old := *service.campaigns.Load()
	next := make(map[string]models.Campaign, len(listing))

	for _, candidate := range listing {
		gameName := candidate.Game.DisplayName
		if settings.IsExcludedGame(gameName) {
			continue
		}

		if candidate.IsAccountConnected && settings.UsePriorityConnected && !settings.IsPriorityGame(gameName) {
			if err := service.settings.AddPriorityGame(ctx, gameName); err != nil {
				log.Warn().Err(err).Str("game", gameName).Msg("priority auto-add failed")
			} else {
				settings = service.settings.Get()
			}
		}

		if mode == models.ScanModePriorityOnly && !settings.IsPriorityGame(gameName) {
			continue
		}

		if prev, ok := old[candidate.ID]; ok {
			// dashboard responses lack the detail-only fields
			candidate.Game = prev.Game
			candidate.Name = prev.Name
			candidate.Priority = prev.Priority
			candidate.IsOffline = prev.IsOffline
			candidate.AllowChannels = prev.AllowChannels
		}
		next[candidate.ID] = candidate
	}

	service.campaigns.Store(&next)
	log.Debug().Int("campaigns", len(next)).Str("mode", mode.String()).Msg("campaigns refreshed")
	return nil
}

// UpdateProgress refreshes rewards and per-campaign drop progress from the
// inventory.
func (service *ServiceCampaign) UpdateProgress(ctx context.Context) error {
	inv, err := service.api.Inventory(ctx)
	if err != nil {
		return err
	}

	now := time.Now()

	service.mu.Lock()
	defer service.mu.Unlock()

	rewards := models.FilterRewards(inv.Rewards, now)
	for _, existing := range *service.rewards.Load() {
		if !existing.WithinWindow(now) {
			continue
		}
		if !hasReward(rewards, existing.ID) {
			rewards = append(rewards, existing)
		}
	}
	service.rewards.Store(&rewards)

	claimEnabled := service.settings.Get().IsClaimDrops
	progress := append([]models.Drop{}, *service.progress.Load()...)
	for _, cp := range inv.Campaigns {
		survivors := filterCampaignDrops(cp.Drops, rewards, claimEnabled, now, true)
		progress = mergeDropsByID(progress, models.RenumberDrops(survivors))
	}
	service.progress.Store(&progress)
	return nil
}

// DropsForCampaign fetches the full campaign detail and returns the drops
// still worth pursuing. A campaign the server no longer knows is removed
// from the map.
func (service *ServiceCampaign) DropsForCampaign(ctx context.Context, campaignID string) ([]models.Drop, error) {
	detail, err := service.api.CampaignDetails(ctx, campaignID, "")
	if err != nil {
		return nil, err
	}

	service.mu.Lock()
	defer service.mu.Unlock()

	if !detail.Exists {
		service.removeCampaignLocked(campaignID)
		log.Info().Str("campaign", campaignID).Msg("campaign vanished server-side")
		return nil, nil
	}

	campaigns := *service.campaigns.Load()
	if current, ok := campaigns[campaignID]; ok {
		next := make(map[string]models.Campaign, len(campaigns))
		for id, c := range campaigns {
			next[id] = c
		}
		current.Name = detail.Name
		current.Game = detail.Game
		current.AllowChannels = detail.AllowChannels
		next[campaignID] = current
		service.campaigns.Store(&next)
	}

	now := time.Now()
	claimEnabled := service.settings.Get().IsClaimDrops
	// detail fetches happen only while a campaign is actively pursued, so
	// upcoming drops are irrelevant here regardless of award instances
	survivors := models.RenumberDrops(filterCampaignDrops(detail.Drops, *service.rewards.Load(), claimEnabled, now, false))

	progress := mergeDropsByID(append([]models.Drop{}, *service.progress.Load()...), survivors)
	service.progress.Store(&progress)
	return survivors, nil
}

// SortedActive is the scheduler's selection input; index 0 is what to do
// next. One campaign per game: later campaigns for a game already covered
// are deferred.
func (service *ServiceCampaign) SortedActive(now time.Time) []models.Campaign {
	settings := service.settings.Get()
	mode := service.Mode()

	var list []models.Campaign
	for _, c := range *service.campaigns.Load() {
		if c.IsOffline || c.IsExpired(now) || c.IsUpcoming(now) {
			continue
		}
		if mode == models.ScanModePriorityOnly && !settings.IsPriorityGame(c.Game.DisplayName) {
			continue
		}
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool {
		if !list[i].EndAt.Equal(list[j].EndAt) {
			return list[i].EndAt.Before(list[j].EndAt)
		}
		return list[i].ID < list[j].ID
	})

	earliest := map[string]models.Campaign{}
	for _, c := range list {
		best, ok := earliest[c.Game.ID]
		if !ok || c.StartAt.Before(best.StartAt) {
			earliest[c.Game.ID] = c
		}
	}
	grouped := list[:0]
	for _, c := range list {
		if earliest[c.Game.ID].ID == c.ID {
			grouped = append(grouped, c)
		}
	}

	sort.SliceStable(grouped, func(i, j int) bool {
		return grouped[i].Priority > grouped[j].Priority
	})
	return grouped
}

// SortedUpcoming lists not-yet-started campaigns by start time; the offline
// flag is deliberately ignored here.
func (service *ServiceCampaign) SortedUpcoming(now time.Time) []models.Campaign {
	settings := service.settings.Get()

	var list []models.Campaign
	for _, c := range *service.campaigns.Load() {
		if !c.IsUpcoming(now) {
			continue
		}
		if settings.IsExcludedGame(c.Game.DisplayName) {
			continue
		}
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartAt.Equal(list[j].StartAt) {
			return list[i].StartAt.Before(list[j].StartAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// OfflineCampaigns lists campaigns flagged offline, highest priority first.
func (service *ServiceCampaign) OfflineCampaigns() []models.Campaign {
	var list []models.Campaign
	for _, c := range *service.campaigns.Load() {
		if c.IsOffline {
			list = append(list, c)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority > list[j].Priority
	})
	return list
}

// ChannelsForCampaign resolves the live channels a campaign can be mined on.
// Every candidate is confirmed to actually carry the campaign; channels that
// fail confirmation get their push topics released so no stale subscription
// leaks.
func (service *ServiceCampaign) ChannelsForCampaign(ctx context.Context, campaign models.Campaign) ([]models.Channel, error) {
	var candidates []models.Channel
	var err error

	if len(campaign.AllowChannels) > 0 {
		logins := campaign.AllowChannels
		if len(logins) > models.MaxAllowChannels {
			logins = logins[:models.MaxAllowChannels]
		}
		candidates, err = service.api.ChannelStreams(ctx, logins)
	} else {
		candidates, err = service.api.GameDirectory(ctx, campaign.Game.Slug)
	}
	if err != nil {
		return nil, err
	}

	confirmed := make([]models.Channel, 0, len(candidates))
	for _, ch := range candidates {
		if !ch.IsOnline {
			continue
		}
		ok, err := service.campaignAvailableOn(ctx, campaign.ID, ch.Login)
		if err != nil || !ok {
			for _, topic := range models.ChannelTopics {
				//nolint:errcheck
				service.pubsub.Unlisten(ctx, topic, ch.ID)
			}
			continue
		}
		confirmed = append(confirmed, ch)
	}
	return confirmed, nil
}

func (service *ServiceCampaign) campaignAvailableOn(ctx context.Context, campaignID, login string) (bool, error) {
	return caching.UseCache(ctx, service.cache, CacheKeyCampaignDetail(campaignID, login), CACHE_TTL_DETAIL, func() (bool, error) {
		detail, err := service.api.CampaignDetails(ctx, campaignID, login)
		if err != nil {
			return false, err
		}
		return detail.Exists && detail.Available, nil
	})
}

func (service *ServiceCampaign) SetOffline(campaignID string, offline bool) {
	service.updateCampaign(campaignID, func(c *models.Campaign) {
		c.IsOffline = offline
	})
}

func (service *ServiceCampaign) SetPriority(campaignID string, priority int) {
	service.updateCampaign(campaignID, func(c *models.Campaign) {
		c.Priority = priority
	})
}

func (service *ServiceCampaign) RemoveCampaign(campaignID string) {
	service.mu.Lock()
	defer service.mu.Unlock()
	service.removeCampaignLocked(campaignID)
}

// AddRewards appends newly-granted benefits, merged by id, and mirrors the
// list to redis.
func (service *ServiceCampaign) AddRewards(ctx context.Context, rewards []models.Reward) {
	service.mu.Lock()
	defer service.mu.Unlock()

	next := append([]models.Reward{}, *service.rewards.Load()...)
	for _, r := range rewards {
		replaced := false
		for i := range next {
			if next[i].ID == r.ID {
				next[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			next = append(next, r)
		}
	}
	service.rewards.Store(&next)

	if err := redis_store.SaveRewards(ctx, service.redisDB, service.userID, next); err != nil {
		log.Warn().Err(err).Msg("reward mirror write failed")
	}
}

// ProgressDrop returns the tracked drop with the given id, if any.
func (service *ServiceCampaign) ProgressDrop(dropID string) *models.Drop {
	for _, d := range *service.progress.Load() {
		if d.ID == dropID {
			snapshot := d
			return &snapshot
		}
	}
	return nil
}

func (service *ServiceCampaign) RemoveProgressDrop(dropID string) {
	service.mu.Lock()
	defer service.mu.Unlock()

	old := *service.progress.Load()
	next := make([]models.Drop, 0, len(old))
	for _, d := range old {
		if d.ID != dropID {
			next = append(next, d)
		}
	}
	service.progress.Store(&next)
}

// ParkDrop marks a drop's preconditions unmet so the scheduler stops
// pursuing it; used after claim exhaustion.
func (service *ServiceCampaign) ParkDrop(dropID string) {
	service.mu.Lock()
	defer service.mu.Unlock()

	next := append([]models.Drop{}, *service.progress.Load()...)
	for i := range next {
		if next[i].ID == dropID {
			next[i].HasPreconditionsMet = false
		}
	}
	service.progress.Store(&next)
}

// HasPriorityActive reports whether any non-expired campaign belongs to a
// priority-listed game; drives the initial scan-mode decision.
func (service *ServiceCampaign) HasPriorityActive(now time.Time) bool {
	settings := service.settings.Get()
	for _, c := range *service.campaigns.Load() {
		if c.IsExpired(now) {
			continue
		}
		if settings.IsPriorityGame(c.Game.DisplayName) {
			return true
		}
	}
	return false
}

func (service *ServiceCampaign) updateCampaign(campaignID string, fn func(c *models.Campaign)) {
	service.mu.Lock()
	defer service.mu.Unlock()

	old := *service.campaigns.Load()
	current, ok := old[campaignID]
	if !ok {
		return
	}
	next := make(map[string]models.Campaign, len(old))
	for id, c := range old {
		next[id] = c
	}
	fn(&current)
	next[campaignID] = current
	service.campaigns.Store(&next)
}

func (service *ServiceCampaign) removeCampaignLocked(campaignID string) {
	old := *service.campaigns.Load()
	if _, ok := old[campaignID]; !ok {
		return
	}
	next := make(map[string]models.Campaign, len(old))
	for id, c := range old {
		if id != campaignID {
			next[id] = c
		}
	}
	service.campaigns.Store(&next)
}

// filterCampaignDrops applies the shared per-drop filter: claimed and
// sub-gated drops go, drops whose benefit was already granted inside the
// reward window go, met-but-unclaimable drops go, expired drops go, and
// upcoming drops survive only on the inventory path when the platform
// already issued their award instance.
func filterCampaignDrops(drops []models.Drop, rewards []models.Reward, claimEnabled bool, now time.Time, keepUpcomingWithInstance bool) []models.Drop {
	sorted := append([]models.Drop{}, drops...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RequiredMinutes < sorted[j].RequiredMinutes
	})

	survivors := make([]models.Drop, 0, len(sorted))
	for _, d := range sorted {
		if d.IsClaimed || d.RequiredSubs > 0 {
			continue
		}
		if benefitGranted(d, rewards, now) {
			continue
		}
		if d.MinutesWatchedMet() && !claimEnabled {
			continue
		}
		switch d.Status(now) {
		case models.DropStatusExpired:
			continue
		case models.DropStatusUpcoming:
			if !keepUpcomingWithInstance || d.InstanceID == "" {
				continue
			}
		}
		survivors = append(survivors, d)
	}
	return survivors
}

func benefitGranted(d models.Drop, rewards []models.Reward, now time.Time) bool {
	for _, id := range d.BenefitIDs {
		for _, r := range rewards {
			if r.ID == id && r.WithinWindow(now) {
				return true
			}
		}
	}
	return false
}

func hasReward(rewards []models.Reward, id string) bool {
	for _, r := range rewards {
		if r.ID == id {
			return true
		}
	}
	return false
}

func mergeDropsByID(existing []models.Drop, updates []models.Drop) []models.Drop {
	for _, u := range updates {
		replaced := false
		for i := range existing {
			if existing[i].ID == u.ID {
				existing[i] = u
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, u)
		}
	}
	return existing
}

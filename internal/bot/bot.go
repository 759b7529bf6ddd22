package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/oakroles/discord-bot/internal/config"
	"github.com/oakroles/discord-bot/internal/content"
	"github.com/oakroles/discord-bot/internal/metrics"
	"github.com/oakroles/discord-bot/internal/nk"
	"github.com/oakroles/discord-bot/internal/roles"
	"github.com/oakroles/discord-bot/internal/scheduler"
	"github.com/oakroles/discord-bot/internal/storage"
)

// Bot represents the Discord bot instance
type Bot struct {
	config    *config.Config
	session   *discordgo.Session
	repo      *storage.Repository
	cache     *nk.Cache
	validator *nk.Validator
	content   *content.Service
	evaluator *roles.Evaluator
	applier   *roles.Applier
	sched     *scheduler.Scheduler
	dm        *DMManager
	metrics   *metrics.Metrics
	commands  []*discordgo.ApplicationCommand
}

// New creates a new Bot instance with all collaborators wired
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
	}

	client := nk.NewClient(cfg.NKAPIBase)
	validator := nk.NewValidator(cfg.APIValidateURL, cfg.APIKey)
	cache := nk.NewCache(repo, client, cfg.CacheDuration, m)
	contentSvc := content.NewService(repo, cache, m)

	dm := NewDMManager(session)
	guild := &guildService{session: session, guildID: cfg.GuildID}
	notifier := &roleNotifier{dm: dm, repo: repo}

	evaluator := roles.NewEvaluator(repo, cache, validator, contentSvc, cfg.Roles)
	applier := roles.NewApplier(repo, guild, notifier, m)
	sched := scheduler.New(repo, evaluator, applier, contentSvc, m, cfg.SyncInterval, cfg.ContentCheckInterval)

	b := &Bot{
		config:    cfg,
		session:   session,
		repo:      repo,
		cache:     cache,
		validator: validator,
		content:   contentSvc,
		evaluator: evaluator,
		applier:   applier,
		sched:     sched,
		dm:        dm,
		metrics:   m,
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start validates the API key, opens the Discord connection and starts
// the background loops. A failed key validation is fatal by design.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.validator.Validate(ctx); err != nil {
		return fmt.Errorf("startup validation failed: %w", err)
	}
	slog.Info("API key validated")

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	go b.sched.Start(ctx)
	go b.metrics.Serve(ctx, b.config.MetricsAddr)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	if b.sched != nil {
		b.sched.Stop()
	}

	// Pending DM auto-deletes are cancelled, not executed
	if b.dm != nil {
		b.dm.Shutdown()
	}

	if b.repo != nil {
		b.repo.Close()
	}

	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
	b.session.AddHandler(b.handleMemberRemove)
}

// handleMemberRemove clears tracked roles when a linked member leaves
func (b *Bot) handleMemberRemove(s *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.GuildID != b.config.GuildID {
		return
	}
	ctx := context.Background()

	accounts, err := b.repo.AccountsByUser(ctx, e.User.ID)
	if err != nil || len(accounts) == 0 {
		return
	}
	cleared, err := b.applier.ClearAwardedRoles(ctx, e.User.ID)
	if err != nil {
		slog.Error("Failed to clear roles for departed member", "user", e.User.ID, "error", err)
		return
	}
	slog.Info("Member left, cleared tracked roles", "user", e.User.ID, "roles", len(cleared))
}

// availabilityGated lists the commands refused while the upstream service
// cannot be confirmed. /status and /myaccounts stay reachable so users and
// staff can still see state while degraded; the owner staff-list commands
// touch nothing upstream.
var availabilityGated = map[string]bool{
	"verify":        true,
	"unlink":        true,
	"myroles":       true,
	"help":          true,
	"forcelink":     true,
	"forceremove":   true,
	"forcerolesync": true,
	"checkuser":     true,
	"listall":       true,
	"updatecontent": true,
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	// A panicking handler must never take the process down
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Command handler panicked", "command", data.Name, "panic", r)
			b.editReplyEmbed(s, i, errorEmbed("Error", "Something went wrong running that command. Please try again later."))
		}
	}()

	ctx := context.Background()

	if err := b.deferEphemeral(s, i); err != nil {
		slog.Error("Failed to defer interaction", "error", err)
		return
	}

	if availabilityGated[data.Name] && !b.validator.KeyValid(ctx) {
		b.editReplyEmbed(s, i, errorEmbed("Service Unavailable",
			"The verification service is currently unreachable. Please try again later."))
		return
	}

	switch data.Name {
	case "verify":
		b.handleVerify(ctx, s, i)
	case "unlink":
		b.handleUnlink(ctx, s, i)
	case "myaccounts":
		b.handleMyAccounts(ctx, s, i)
	case "myroles":
		b.handleMyRoles(ctx, s, i)
	case "help":
		b.handleHelp(ctx, s, i)
	case "forcelink":
		b.handleForceLink(ctx, s, i)
	case "forceremove":
		b.handleForceRemove(ctx, s, i)
	case "forcerolesync":
		b.handleForceRoleSync(ctx, s, i)
	case "checkuser":
		b.handleCheckUser(ctx, s, i)
	case "listall":
		b.handleListAll(ctx, s, i)
	case "updatecontent":
		b.handleUpdateContent(ctx, s, i)
	case "status":
		b.handleStatus(ctx, s, i)
	case "addstaff":
		b.handleAddStaff(ctx, s, i)
	case "removestaff":
		b.handleRemoveStaff(ctx, s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Unknown command."))
	}
}

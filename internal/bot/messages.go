package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/playrelay/internal/autopost"
	"github.com/user/playrelay/internal/session"
)

const (
	msgAdminOnly        = "❌ This command is for admin only."
	msgAdminOnlyAction  = "❌ This action is for admin only."
	msgSendImageFirst   = "📷 Please start by sending me an image first, then I'll ask for your video link!"
	msgCreatePostFirst  = "Please create a post first by sending an image and video link."
	msgNoPostData       = "No post data found. Please create a post first."
	msgAlreadyReady     = "✅ Your post is already ready. Send a new image to start over."
	msgPreviewFailed    = "❌ Error creating your post. Please try again."
	msgPostCreatedAdmin = "✅ Post created! Use /post to share to your channels."
	msgSessionCleared   = "🗑 Session cleared. Send an image to start a new post."
	msgSelectChannel    = "Select channel to post:"
	msgSelectAutopost   = "Select channel to autopost to:"
	msgAutopostDisabled = "⚠️ Autoposting is not configured."
	msgUnknownAction    = "Unknown action."
	msgUnknownCommand   = "Unknown command. Available: /start, /post, /postall, /autopost, /status, /cancel"
	msgBroadcastStarted = "📤 Publishing started"
	exampleLocator      = "https://iframe.mediadelivery.net/play/..."
)

func usageText(isAdmin bool) string {
	var b strings.Builder
	b.WriteString("🎬 *Video Link Bot*\n\n")
	b.WriteString("*How to use:*\n")
	b.WriteString("1️⃣ Send me an image\n")
	b.WriteString("2️⃣ Send your video link\n")
	b.WriteString("3️⃣ I'll create a clean shareable post\n")
	if isAdmin {
		b.WriteString("\n*Admin Features:*\n")
		b.WriteString("/post - share to one channel\n")
		b.WriteString("/postall - share to every channel\n")
		b.WriteString("/autopost - publish the next queued item now\n")
	}
	b.WriteString("\n*No visible links, just images!* 👌")
	return b.String()
}

func imageReceivedText(isAdmin bool) string {
	msg := "📸 *Image received!*\n\nNow send me your video link:\n`" + exampleLocator + "`"
	if isAdmin {
		return msg + "\n\nAfter sending the link, use /post to share to your channels."
	}
	return msg + "\n\nI'll create a clean post with your image! 🎯"
}

func statusText(sess *session.Session, ok bool) string {
	if !ok {
		return "No active post. Send an image to start."
	}
	switch sess.Phase {
	case session.PhaseReady:
		return "✅ Post ready to share."
	default:
		return "⏳ Image received, waiting for your video link."
	}
}

func autopostResultText(name string, res autopost.Result, err error) string {
	switch {
	case errors.Is(err, autopost.ErrNoContent):
		return fmt.Sprintf("📭 No content queued for %s.", name)
	case err != nil && res.Item.TextPath == "":
		return fmt.Sprintf("❌ Autopost to %s failed: %v", name, err)
	case !res.Attempt.OK():
		return fmt.Sprintf("❌ Autopost to %s failed; the item was archived.", name)
	case err != nil:
		return fmt.Sprintf("⚠️ Posted to %s, but archiving failed: %v", name, err)
	default:
		return fmt.Sprintf("✅ Autoposted to %s.", name)
	}
}

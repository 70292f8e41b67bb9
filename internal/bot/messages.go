package bot

import (
	stderrors "errors"
	"fmt"
	"time"

	"igrelay/pkg/errors"
	"igrelay/pkg/instagram"
)

const msgWelcome = `Hi! I fetch Instagram media for you.

Send me:
- a username (or @username) to get their active stories
- a post or reel link to get its media

Use /help for the full command list.`

const msgHelp = `Commands:
/start - introduction
/help - this message
/login <username> <password> - log in with your Instagram account to access private profiles you follow
/verify <code> - submit the 6-digit verification code Instagram sent you
/status - your login and usage status

You can also just send a username, @username, profile link, post link or reel link.`

const msgAdminHelp = `Admin commands:
/accounts - list rotation pool accounts
/addaccount <username> <password> - add a pool account
/removeaccount <username> - remove a pool account
/rotate - switch the active pool account
/setlimit <n> - per-account daily request limit
/setcooldown <hours> - cooldown for exhausted accounts
/autorotate - start background rotation
/stoprotation - stop background rotation
/rotationstatus - rotation pool status`

const msgLoginUsage = "Usage: /login <username> <password>\n\nYour message is deleted right away and the password is never stored."

const msgLoginPrivateOnly = "Please /login in a private chat with me, not in a group."

const msgFetching = "Fetching, hang on..."

const msgVerifyUsage = "Usage: /verify <code> - the 6-digit code Instagram sent you."

const msgNoPendingVerification = "There is no login waiting for a verification code. Start with /login."

const msgVerificationExpired = "That verification window has expired. Start again with /login."

const msgLoginSuccess = "Logged in as @%s. You can now fetch private profiles this account follows."

const msgChallengeSent = "Instagram wants to verify it's you. Check your email or SMS and send me the 6-digit code (or use /verify <code>). You have %s."

const msgNotAdmin = "This command is restricted to bot admins."

const msgUnrecognized = "I couldn't make sense of that. Send a username, a post/reel link, or /help."

// rateLimitedMessage tells the user when to come back
func rateLimitedMessage(retryAfter time.Duration) string {
	retryAfter = retryAfter.Round(time.Minute)
	if retryAfter < time.Minute {
		retryAfter = time.Minute
	}
	return fmt.Sprintf("You've hit your request limit. Try again in about %s.", retryAfter)
}

// userMessage translates an internal error into a reply the user can act on
func userMessage(err error) string {
	var challenge *instagram.ChallengeError
	if stderrors.As(err, &challenge) {
		return "Instagram is asking for extra verification on that account. Try again later."
	}

	var apiErr *errors.Error
	if !stderrors.As(err, &apiErr) {
		return "Something went wrong fetching that. Please try again later."
	}

	switch apiErr.Type {
	case errors.ErrorTypeNotFound:
		return "Couldn't find that. " + apiErr.Message
	case errors.ErrorTypePrivate:
		return "That profile is private. Log in with /login using an account that follows them."
	case errors.ErrorTypeAuth:
		return "Instagram denied access. The profile may be private, or a login is needed (/login)."
	case errors.ErrorTypeRateLimit:
		return "Instagram is rate limiting me right now. Give it a few minutes and try again."
	case errors.ErrorTypeMediaTooLarge:
		return "That media is larger than Telegram's 50 MB bot upload limit, so I can't send it."
	case errors.ErrorTypeNetwork, errors.ErrorTypeServerError:
		return "Instagram seems unreachable at the moment. Please try again shortly."
	default:
		return "Something went wrong fetching that. Please try again later."
	}
}

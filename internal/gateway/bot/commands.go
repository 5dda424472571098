package bot

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/domain"
	"github.com/Xausdorf/votechain/internal/usecase"
)

const (
	createMinArgsCount = 5
	voteArgsCount      = 2
)

// splitCommand splits a message at spaces, except spaces inside quotation marks.
func splitCommand(message string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(message)))
	r.Comma = ' '
	r.LazyQuotes = true
	tokens, err := r.Read()
	if err != nil {
		return nil, err
	}
	out := tokens[:0]
	for _, tok := range tokens {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out, nil
}

// reply runs one chat command on behalf of userID. ok is false for messages that are not commands.
func (b *VotingBot) reply(ctx context.Context, userID, message string) (string, bool) {
	if !strings.HasPrefix(strings.TrimSpace(message), "/") {
		return "", false
	}
	tokens, err := splitCommand(message)
	if err != nil || len(tokens) == 0 {
		b.logger.Debug("could not split message", zap.String("message", message), zap.Error(err))
		return "", false
	}

	caller := domain.Identity(userID)
	args := tokens[1:]
	switch tokens[0] {
	case "/voting_create":
		return b.handleCreate(ctx, caller, args), true
	case "/voting_vote":
		return b.handleVote(ctx, caller, args), true
	case "/voting_show":
		return b.handleShow(ctx, caller, args), true
	case "/voting_list":
		return b.handleList(ctx, args), true
	case "/voting_mine":
		return b.handleMine(ctx, caller), true
	case "/voting_finalize":
		return b.handleFinalize(ctx, caller, args), true
	case "/help":
		return helpMessage, true
	}
	return "", false
}

func (b *VotingBot) handleCreate(ctx context.Context, caller domain.Identity, args []string) string {
	// /voting_create [title] [start] [end] "[candidate1]" "[candidate2]" ...
	if len(args) < createMinArgsCount {
		return "Too few arguments. Expected a title, start and end times and at least 2 candidates"
	}
	start, err := domain.ParsePickerTime(args[1], b.cfg.location)
	if err != nil {
		return "Start time must look like 2006-01-02T15:04"
	}
	end, err := domain.ParsePickerTime(args[2], b.cfg.location)
	if err != nil {
		return "End time must look like 2006-01-02T15:04"
	}

	id, err := b.orch.CreateVoting(ctx, domain.VotingDraft{
		Title:          args[0],
		CandidateNames: args[3:],
		Start:          start,
		End:            end,
	}, caller)
	if err != nil {
		var verr *usecase.ValidationError
		if errors.As(err, &verr) {
			return verr.Error()
		}
		b.logger.Warn("failed to create voting", zap.Error(err))
		return "Failed to create voting. Try again"
	}

	view, err := b.orch.Observe(ctx, id, caller)
	if err != nil {
		return fmt.Sprintf("Voting successfully created!\nID: %s", id)
	}
	return "Voting successfully created!\n" + b.render(view)
}

func (b *VotingBot) handleVote(ctx context.Context, caller domain.Identity, args []string) string {
	// /voting_vote [votingID] [candidate]
	if len(args) != voteArgsCount {
		return "There must be 2 arguments: voting ID and candidate's number"
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return "Candidate must be an integer: candidate's number"
	}

	view, err := b.orch.Vote(ctx, args[0], index, caller)
	switch {
	case err == nil:
		return "Vote successfully registered\n" + b.render(view)
	case errors.Is(err, usecase.ErrVotingNotFound):
		return "There is no voting with such ID. Try again"
	case errors.Is(err, usecase.ErrNoSuchCandidate):
		return "There are not so many candidates. Try again"
	case errors.Is(err, usecase.ErrNotEligible):
		if view.HasVoted.Or(false) {
			return "You have already voted in this voting"
		}
		return fmt.Sprintf("Voting is %s, you can not vote", view.Status)
	case errors.Is(err, usecase.ErrAlreadyVoted):
		return "You have already voted in this voting"
	}
	b.logger.Warn("failed to vote", zap.String("voting", args[0]), zap.Error(err))
	return usecase.SubmissionMessage(err)
}

func (b *VotingBot) handleShow(ctx context.Context, caller domain.Identity, args []string) string {
	// /voting_show [votingID]
	if len(args) != 1 {
		return "There must be 1 argument: voting ID"
	}
	view, err := b.orch.Observe(ctx, args[0], caller)
	if err != nil {
		if errors.Is(err, usecase.ErrVotingNotFound) {
			return "There is no voting with such ID. Try again"
		}
		b.logger.Warn("failed to show voting", zap.String("voting", args[0]), zap.Error(err))
		return "Failed to obtain voting. Try again"
	}
	return b.render(view)
}

func (b *VotingBot) handleList(ctx context.Context, _ []string) string {
	ids, err := b.orch.AllVotings(ctx)
	if err != nil {
		b.logger.Warn("failed to list votings", zap.Error(err))
		return "Failed to list votings. Try again"
	}
	return listMessage("Votings", ids)
}

func (b *VotingBot) handleMine(ctx context.Context, caller domain.Identity) string {
	ids, err := b.orch.VotingsByCreator(ctx, caller)
	if err != nil {
		b.logger.Warn("failed to list own votings", zap.Error(err))
		return "Failed to list your votings. Try again"
	}
	return listMessage("Your votings", ids)
}

func (b *VotingBot) handleFinalize(ctx context.Context, caller domain.Identity, args []string) string {
	// /voting_finalize [votingID]
	if len(args) != 1 {
		return "There must be 1 argument: voting ID"
	}
	err := b.orch.Finalize(ctx, args[0], caller)
	switch {
	case err == nil:
		return "Voting successfully finalized"
	case errors.Is(err, usecase.ErrVotingNotFound):
		return "Failed to finalize voting: there is no voting with such ID. Try again"
	case errors.Is(err, usecase.ErrNotCreator):
		return "You can not finalize this voting, only creator can"
	case errors.Is(err, usecase.ErrVotingNotEnded):
		return "Voting has not ended yet"
	case errors.Is(err, usecase.ErrAlreadyFinalized):
		return "Voting is already finalized"
	}
	b.logger.Warn("failed to finalize voting", zap.String("voting", args[0]), zap.Error(err))
	return "Failed to finalize voting. Try again"
}

func listMessage(header string, ids []string) string {
	if len(ids) == 0 {
		return header + ": none yet"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s):", header, humanize.Comma(int64(len(ids))))
	for _, id := range ids {
		fmt.Fprintf(&sb, "\n* %s (%s)", id, domain.ShortAddress(id))
	}
	return sb.String()
}

// render prints a settled view as a chat message.
func (b *VotingBot) render(v usecase.View) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s]\nID: %s\n", v.Title.Or(domain.Placeholder), v.Status.Label(), v.Address)
	fmt.Fprintf(&sb, "From %s to %s", v.StartLabel, v.EndLabel)
	if v.Remaining != "" {
		end := time.Unix(int64(v.EndTime.Or(0)), 0)
		fmt.Fprintf(&sb, " (%s, ends %s)", v.Remaining, humanize.RelTime(end, b.clock(), "ago", "from now"))
	}
	if v.CandidatesError != "" {
		fmt.Fprintf(&sb, "\nCould not load candidates: %s", v.CandidatesError)
	}
	for _, c := range v.Tally.Candidates {
		fmt.Fprintf(&sb, "\n%d. %s: %s votes (%.1f%%)", c.Index, c.Name, humanize.Comma(int64(c.VoteCount)), c.Percent)
		if c.Winner {
			sb.WriteString(" - winner")
		}
	}
	fmt.Fprintf(&sb, "\nTotal votes: %s", humanize.Comma(int64(v.Tally.TotalVotes)))
	if v.HasVoted.Or(false) {
		sb.WriteString("\nYou have voted")
	} else if v.CanSelect {
		sb.WriteString("\nVote with /voting_vote " + v.Address + " [number]")
	}
	return sb.String()
}

const helpMessage = `Available commands:
	* /help - info about commands

	* /voting_create [title] [start] [end] "[candidate1]" "[candidate2]" ... - creates a voting and returns its ID.
	Times look like 2006-01-02T15:04. IMPORTANT: quote titles and candidates with spaces.

	* /voting_vote [votingID] [candidate] - casts your vote. [candidate] is the number of the candidate in the list.

	* /voting_show [votingID] - shows status and current results.

	* /voting_list - lists all votings, newest first.

	* /voting_mine - lists the votings you created.

	* /voting_finalize [votingID] - creator of a voting can finalize it after it ended.`

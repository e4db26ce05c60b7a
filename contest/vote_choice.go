package contest

import (
	"fmt"
	"strings"

	"github.com/evotools/contestd/common/types"
)

type VoteChoiceKind int

const (
	ChoiceLock VoteChoiceKind = iota
	ChoiceAbstain
	ChoiceTowardsIdentity
)

// VoteChoice is the ballot option of one vote: lock the name, abstain,
// or direct the vote toward a specific identity's claim.
type VoteChoice struct {
	Kind      VoteChoiceKind
	TowardsID types.Identifier
}

func LockChoice() VoteChoice {
	return VoteChoice{Kind: ChoiceLock}
}

func AbstainChoice() VoteChoice {
	return VoteChoice{Kind: ChoiceAbstain}
}

func TowardsIdentity(id types.Identifier) VoteChoice {
	return VoteChoice{Kind: ChoiceTowardsIdentity, TowardsID: id}
}

// String uses the wire/storage form: "Lock", "Abstain",
// "TowardsIdentity(<hex id>)".
func (c VoteChoice) String() string {
	switch c.Kind {
	case ChoiceLock:
		return "Lock"
	case ChoiceAbstain:
		return "Abstain"
	case ChoiceTowardsIdentity:
		return fmt.Sprintf("TowardsIdentity(%s)", c.TowardsID.Hex())
	default:
		return "Unknown"
	}
}

func ParseVoteChoice(s string) (VoteChoice, error) {
	switch s {
	case "Lock":
		return LockChoice(), nil
	case "Abstain":
		return AbstainChoice(), nil
	}
	if inner := strings.TrimPrefix(s, "TowardsIdentity("); inner != s && strings.HasSuffix(inner, ")") {
		id, err := types.HexToIdentifier(strings.TrimSuffix(inner, ")"))
		if err != nil {
			return VoteChoice{}, fmt.Errorf("vote choice %q: %v", s, err)
		}
		return TowardsIdentity(id), nil
	}
	return VoteChoice{}, fmt.Errorf("unknown vote choice %q", s)
}

func (c VoteChoice) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *VoteChoice) UnmarshalText(text []byte) error {
	parsed, err := ParseVoteChoice(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

package dice

import "fmt"

// Face 骰面
//
// The numeric value doubles as the tie-break weight (ACE lowest, NINE highest)
// and the position in the run used for straights.
type Face byte

const (
	FaceInvalid Face = 0

	Ace   Face = 1
	King  Face = 2
	Queen Face = 3
	Jack  Face = 4
	Ten   Face = 5
	Nine  Face = 6
)

// FaceCount is the number of distinct faces on a die.
const FaceCount = 6

// Faces lists every face in ascending weight order.
var Faces = [FaceCount]Face{Ace, King, Queen, Jack, Ten, Nine}

var faceNames = map[Face]string{
	Ace:   "ACE",
	King:  "KING",
	Queen: "QUEEN",
	Jack:  "JACK",
	Ten:   "TEN",
	Nine:  "NINE",
}

func (f Face) String() string {
	if name, ok := faceNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Face(%d)", byte(f))
}

// Weight is the tie-break weight of the face.
func (f Face) Weight() int {
	if !f.Valid() {
		return 0
	}
	return int(f)
}

func (f Face) Valid() bool {
	return f >= Ace && f <= Nine
}

// ParseFace accepts the upper-case face name ("ACE", "NINE", ...).
func ParseFace(s string) (Face, error) {
	for f, name := range faceNames {
		if name == s {
			return f, nil
		}
	}
	return FaceInvalid, fmt.Errorf("unknown face %q", s)
}

func (f Face) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid face %d", byte(f))
	}
	return []byte(f.String()), nil
}

func (f *Face) UnmarshalText(b []byte) error {
	v, err := ParseFace(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

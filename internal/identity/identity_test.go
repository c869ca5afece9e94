package identity

import (
	"context"
	"testing"

	"github.com/unipro/procurement/pkg/errorbank"
)

func TestHeaderResolverResolve(t *testing.T) {
	resolver := NewHeaderResolver()

	cases := []struct {
		name  string
		creds Credentials
		want  Actor
		fails bool
	}{
		{"valid", Credentials{ActorID: "42", Role: "purchasing"}, Actor{ID: 42, Role: RolePurchasing}, false},
		{"field team", Credentials{ActorID: "7", Role: "tim_lapangan"}, Actor{ID: 7, Role: RoleFieldTeam}, false},
		{"missing id", Credentials{Role: "gm"}, Actor{}, true},
		{"missing role", Credentials{ActorID: "42"}, Actor{}, true},
		{"non-numeric id", Credentials{ActorID: "abc", Role: "gm"}, Actor{}, true},
		{"zero id", Credentials{ActorID: "0", Role: "gm"}, Actor{}, true},
		{"negative id", Credentials{ActorID: "-3", Role: "gm"}, Actor{}, true},
		{"unknown role", Credentials{ActorID: "42", Role: "janitor"}, Actor{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actor, err := resolver.Resolve(context.Background(), tc.creds)
			if tc.fails {
				if err == nil {
					t.Fatal("expected error")
				}
				if errorbank.From(err).Kind() != errorbank.KindUnauthenticated {
					t.Errorf("expected unauthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if actor != tc.want {
				t.Errorf("expected %+v, got %+v", tc.want, actor)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"purchasing", "cost_control", "gm", "director", "tim_lapangan"} {
		if _, ok := ParseRole(raw); !ok {
			t.Errorf("expected %q to parse", raw)
		}
	}
	if _, ok := ParseRole("Purchasing"); ok {
		t.Error("expected role parsing to be exact, not case-folded")
	}
	if _, ok := ParseRole(""); ok {
		t.Error("expected empty role to fail")
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	want := Actor{ID: 9, Role: RoleGM}
	ctx := WithActor(context.Background(), want)

	got, ok := ActorFromContext(ctx)
	if !ok || got != want {
		t.Errorf("expected %+v, got %+v ok=%v", want, got, ok)
	}
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Error("expected no actor on a fresh context")
	}
}

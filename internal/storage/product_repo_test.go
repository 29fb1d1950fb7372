package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func sections(section string, texts ...string) []SectionRecord {
	out := make([]SectionRecord, len(texts))
	for i, text := range texts {
		out[i] = SectionRecord{Section: section, PartIdx: i, Text: text}
	}
	return out
}

func TestProductRepo_SaveProduct(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	sectionRepo := NewSectionRepo(db)
	ctx := context.Background()

	product := &ProductRecord{
		ItemSeq:  "A1",
		ItemName: "Tylenol",
		EntpName: "J&J",
		OpenDe:   "2021-01-29",
		UpdateDe: "2024-05-09",
		IsOTC:    true,
		RawJSON:  `{"itemSeq":"A1"}`,
	}

	res, err := repo.SaveProduct(ctx, product, sections("efficacy", "a", "b", "c"), []string{"Tylenol", "타이레놀"}, []string{"acetaminophen"})
	if err != nil {
		t.Fatalf("SaveProduct() error = %v", err)
	}
	if len(res.StaleKeys) != 0 {
		t.Errorf("first save StaleKeys = %v, want none", res.StaleKeys)
	}
	if want := []string{"Tylenol", "타이레놀"}; !reflect.DeepEqual(res.Aliases, want) {
		t.Errorf("Aliases = %v, want %v", res.Aliases, want)
	}

	got, err := repo.Get(ctx, "A1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if *got != *product {
		t.Errorf("Get() = %+v, want %+v", got, product)
	}

	stored, err := sectionRepo.ListByProduct(ctx, "A1")
	if err != nil {
		t.Fatalf("ListByProduct() error = %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("stored %d sections, want 3", len(stored))
	}
	for i, s := range stored {
		if s.PartIdx != i {
			t.Errorf("section %d has part_idx %d", i, s.PartIdx)
		}
	}
}

func TestProductRepo_SaveProduct_Idempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	sectionRepo := NewSectionRepo(db)
	ctx := context.Background()

	product := &ProductRecord{ItemSeq: "A1", IsOTC: true, RawJSON: "{}"}
	secs := append(sections("efficacy", "a", "b"), sections("dosage", "c")...)

	first, err := repo.SaveProduct(ctx, product, secs, []string{"x"}, []string{"i"})
	if err != nil {
		t.Fatalf("first SaveProduct() error = %v", err)
	}
	before, _ := sectionRepo.ListByProduct(ctx, "A1")

	second, err := repo.SaveProduct(ctx, product, secs, []string{"x"}, []string{"i"})
	if err != nil {
		t.Fatalf("second SaveProduct() error = %v", err)
	}
	after, _ := sectionRepo.ListByProduct(ctx, "A1")

	if len(second.StaleKeys) != 0 {
		t.Errorf("re-save StaleKeys = %v", second.StaleKeys)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("sections changed after identical re-save:\n%v\n%v", before, after)
	}
	if !reflect.DeepEqual(first.Aliases, second.Aliases) {
		t.Errorf("aliases changed: %v vs %v", first.Aliases, second.Aliases)
	}
}

func TestProductRepo_SaveProduct_Shrink(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	sectionRepo := NewSectionRepo(db)
	ctx := context.Background()
	product := &ProductRecord{ItemSeq: "A1", IsOTC: true, RawJSON: "{}"}

	_, err := repo.SaveProduct(ctx, product,
		append(sections("efficacy", "a", "b", "c", "d"), sections("storage", "s")...),
		[]string{"old alias"}, []string{"old", "shared"})
	if err != nil {
		t.Fatalf("SaveProduct() error = %v", err)
	}

	res, err := repo.SaveProduct(ctx, product, sections("efficacy", "a2", "b2"), []string{"new alias"}, []string{"shared", "new"})
	if err != nil {
		t.Fatalf("SaveProduct() error = %v", err)
	}

	wantStale := []SectionKey{
		{ItemSeq: "A1", Section: "efficacy", PartIdx: 2},
		{ItemSeq: "A1", Section: "efficacy", PartIdx: 3},
		{ItemSeq: "A1", Section: "storage", PartIdx: 0},
	}
	if !reflect.DeepEqual(res.StaleKeys, wantStale) {
		t.Errorf("StaleKeys = %v, want %v", res.StaleKeys, wantStale)
	}
	if want := []string{"new alias", "old alias"}; !reflect.DeepEqual(res.Aliases, want) {
		t.Errorf("Aliases = %v, want %v (aliases accumulate)", res.Aliases, want)
	}

	stored, _ := sectionRepo.ListByProduct(ctx, "A1")
	if len(stored) != 2 || stored[0].Text != "a2" || stored[1].Text != "b2" {
		t.Errorf("stored sections = %+v", stored)
	}

	infos, err := NewCatalogRepo(db).GetProducts(ctx, []string{"A1"})
	if err != nil {
		t.Fatalf("GetProducts() error = %v", err)
	}
	if want := []string{"new", "shared"}; !reflect.DeepEqual(infos["A1"].Ingredients, want) {
		t.Errorf("Ingredients = %v, want %v (ingredients are replaced)", infos["A1"].Ingredients, want)
	}
}

func TestProductRepo_SaveProduct_RollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()

	// Abort at the ingredient insert, after the product and its sections were written.
	bad := []SectionRecord{{Section: "efficacy", PartIdx: 0, Text: "ok"}}
	if _, err := db.Exec("CREATE TRIGGER fail_ingredient BEFORE INSERT ON product_ingredients BEGIN SELECT RAISE(ABORT, 'boom'); END;"); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err := repo.SaveProduct(ctx, &ProductRecord{ItemSeq: "A1", RawJSON: "{}"}, bad, nil, []string{"x"})
	if err == nil {
		t.Fatal("SaveProduct() expected error")
	}

	if _, err := repo.Get(ctx, "A1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("product persisted after rollback: err = %v", err)
	}
	keys, err := NewSectionRepo(db).ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("sections persisted after rollback: %v", keys)
	}
}

func TestProductRepo_Get_NotFound(t *testing.T) {
	repo := NewProductRepo(newTestDB(t))
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestProductRepo_ListItemSeqs(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()

	for _, id := range []string{"B", "A", "C"} {
		if _, err := repo.SaveProduct(ctx, &ProductRecord{ItemSeq: id, RawJSON: "{}"}, nil, nil, nil); err != nil {
			t.Fatalf("SaveProduct(%s) error = %v", id, err)
		}
	}
	ids, err := repo.ListItemSeqs(ctx)
	if err != nil {
		t.Fatalf("ListItemSeqs() error = %v", err)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ListItemSeqs() = %v, want %v", ids, want)
	}
}

func TestSectionRepo_Get(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := NewProductRepo(db).SaveProduct(ctx, &ProductRecord{ItemSeq: "A1", RawJSON: "{}"}, sections("warnings", "w0", "w1"), nil, nil); err != nil {
		t.Fatalf("SaveProduct() error = %v", err)
	}

	repo := NewSectionRepo(db)
	s, err := repo.Get(ctx, SectionKey{ItemSeq: "A1", Section: "warnings", PartIdx: 1})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Text != "w1" {
		t.Errorf("Get().Text = %q, want w1", s.Text)
	}
	if _, err := repo.Get(ctx, SectionKey{ItemSeq: "A1", Section: "warnings", PartIdx: 2}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing key error = %v, want ErrNotFound", err)
	}
}

package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/service"
)

func TestListDrivers_FiltersAndPages(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		putAvailableDriver(e, fmt.Sprintf("driver-%02d", i))
	}
	e.store.PutDriver(&domain.DriverProfile{UserID: "driver-00", Status: domain.DriverStatusOffline})

	page, err := e.drivers.ListDrivers(ctx, "available", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || page.TotalPages != 3 || page.Page != 2 {
		t.Errorf("unexpected page meta: total=%d pages=%d page=%d", page.Total, page.TotalPages, page.Page)
	}
	if len(page.Drivers) != 2 || page.Drivers[0].UserID != "driver-03" || page.Drivers[1].UserID != "driver-04" {
		t.Errorf("unexpected page contents: %+v", page.Drivers)
	}

	all, err := e.drivers.ListDrivers(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 6 || all.Page != 1 || all.Drivers[0].UserID != "driver-00" {
		t.Errorf("unexpected unfiltered listing: total=%d page=%d", all.Total, all.Page)
	}
}

func TestListDrivers_UnknownStatus(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	if _, err := e.drivers.ListDrivers(context.Background(), "asleep", 1, 10); !errors.Is(err, service.ErrInvalidDriverStatus) {
		t.Errorf("expected ErrInvalidDriverStatus, got: %v", err)
	}
}

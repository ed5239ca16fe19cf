package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/huishype/huishype/internal/app"
	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a running service with several properties", t, func() {
		ctx := context.Background()
		store := newTestStore(t)
		pub := &recordingPublisher{}
		svc := service.New(store,
			service.WithWorkerCount(4),
			service.WithQueueSize(1000),
			service.WithPublisher(pub),
		)
		So(svc.Start(ctx), ShouldBeNil)

		const properties = 5
		for i := 0; i < properties; i++ {
			_, err := svc.UpsertProperty(ctx, model.Property{
				ID:          fmt.Sprintf("prop-%d", i),
				AskingPrice: fmv.Float(300000),
			})
			So(err, ShouldBeNil)
		}

		Convey("When many users guess concurrently", func() {
			const users = 12
			var wg sync.WaitGroup
			errs := make(chan error, users*properties)
			for u := 0; u < users; u++ {
				user := uuid.New()
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < properties; i++ {
						id := fmt.Sprintf("prop-%d", i)
						_, err := svc.SubmitGuess(ctx, model.GuessEvent{
							EventID: id,
							Guess:   model.Guess{PropertyID: id, UserID: user, Price: 330000},
						})
						if err != nil {
							errs <- err
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err, ShouldBeNil)
			}

			Convey("Then stopping drains the queue and every estimate is high confidence", func() {
				So(svc.Stop(ctx), ShouldBeNil)

				for i := 0; i < properties; i++ {
					id := fmt.Sprintf("prop-%d", i)
					res, err := svc.CurrentFMV(ctx, id)
					So(err, ShouldBeNil)
					So(res.GuessCount, ShouldEqual, users)
					So(res.Confidence, ShouldEqual, fmv.ConfidenceHigh)
					So(*res.FMV, ShouldEqual, 330000)
					So(*res.Divergence, ShouldEqual, 10)

					last, ok := pub.last(id)
					So(ok, ShouldBeTrue)
					So(last.GuessCount, ShouldEqual, users)
				}

				top, err := svc.TopDivergence(ctx, properties)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, properties)
				for _, e := range top {
					So(e.Rank, ShouldEqual, 1)
				}
			})
		})
	})
}
